package domain

// PageState is a page together with its blocks, as returned to clients.
type PageState struct {
	Page      Page    `json:"page"`
	Published bool    `json:"published"`
	Blocks    []Block `json:"blocks"`
}
