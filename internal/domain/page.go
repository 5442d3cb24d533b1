package domain

import (
	"context"
	"time"
)

// Page is a tenant's landing page. Its blocks share one grid.
type Page struct {
	ID           string     `json:"id" bson:"_id"`
	TenantID     string     `json:"tenantId" bson:"tenant_id"`
	Slug         string     `json:"slug" bson:"slug"`
	Title        string     `json:"title" bson:"title"`
	Description  string     `json:"description" bson:"description"`
	StyleJSON    string     `json:"styleJson" bson:"style_json"`
	SettingsJSON string     `json:"settingsJson" bson:"settings_json"`
	IsActive     bool       `json:"isActive" bson:"is_active"`
	Views        int        `json:"views" bson:"views"`
	LastViewedAt *time.Time `json:"lastViewedAt" bson:"last_viewed_at"`
	PublishedAt  *time.Time `json:"publishedAt" bson:"published_at"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updated_at"`
}

// IsPublished reports whether the page is active and has a publish date.
func (p Page) IsPublished() bool {
	return p.IsActive && p.PublishedAt != nil
}

type PageStore interface {
	CreatePage(ctx context.Context, p *Page) error
	GetPage(ctx context.Context, id string) (*Page, error)
	GetPageBySlug(ctx context.Context, slug string) (*Page, error)
	ListPages(ctx context.Context, tenantID string) ([]Page, error)
	ListPageIDs(ctx context.Context) ([]string, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdatePage(ctx context.Context, p *Page) error
	IncrementViews(ctx context.Context, id string, at time.Time) error
	DeletePage(ctx context.Context, id string) error
}
