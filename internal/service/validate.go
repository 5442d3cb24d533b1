package service

import (
	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/layout"
)

// validateSize rejects sizes that cannot fit the grid at any column.
func validateSize(size layout.Size, g layout.Grid) error {
	if size.Width < 1 || size.Height < 1 {
		return errs.New(errs.ErrCodeInvalidInput, "width and height must be at least 1")
	}
	if size.Width > g.Columns {
		return errs.New(errs.ErrCodeInvalidInput, "width %d exceeds the %d grid columns", size.Width, g.Columns)
	}
	if size.Height > g.Rows() {
		return errs.New(errs.ErrCodeInvalidInput, "height %d exceeds the %d grid rows", size.Height, g.Rows())
	}
	return nil
}

// validatePlacement rejects placements that leave the grid.
func validatePlacement(p layout.Placement, g layout.Grid) error {
	if err := validateSize(p.Size, g); err != nil {
		return err
	}
	if p.X < 0 || p.Y < 0 {
		return errs.New(errs.ErrCodeInvalidInput, "x and y must not be negative")
	}
	if p.Y > g.Rows()-p.Height {
		return errs.New(errs.ErrCodeInvalidInput, "block at y=%d with height %d runs past the %d grid rows", p.Y, p.Height, g.Rows())
	}
	if !g.Fits(p) {
		return errs.New(errs.ErrCodeInvalidInput, "block at x=%d with width %d overflows the %d grid columns", p.X, p.Width, g.Columns)
	}
	return nil
}

func validateType(t domain.BlockType) error {
	switch t {
	case domain.BlockTypeText, domain.BlockTypeHTML, domain.BlockTypeImage, domain.BlockTypeVideo,
		domain.BlockTypeLink, domain.BlockTypeSeparator, domain.BlockTypeTitle:
		return nil
	}
	return errs.New(errs.ErrCodeInvalidInput, "unknown block type %q", t)
}
