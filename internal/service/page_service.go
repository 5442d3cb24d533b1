package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"maglink/internal/domain"
	"maglink/internal/errs"
)

// ─────────────────────────────────────────────────────────────
// Page Service: business logic for pages
// ─────────────────────────────────────────────────────────────

// maxSlugAttempts bounds the -2, -3, ... suffix search before falling back
// to a random suffix.
const maxSlugAttempts = 100

// PageService manages pages. Pages are addressed by id or by slug.
type PageService struct {
	pages   domain.PageStore
	blocks  domain.BlockStore
	emitter EventEmitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewPageService creates a PageService.
func NewPageService(pages domain.PageStore, blocks domain.BlockStore, emitter EventEmitter, logger *zap.Logger) *PageService {
	return &PageService{
		pages:   pages,
		blocks:  blocks,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

type CreatePageInput struct {
	TenantID     string     `json:"tenantId"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description"`
	StyleJSON    string     `json:"styleJson"`
	SettingsJSON string     `json:"settingsJson"`
	IsActive     *bool      `json:"isActive"`
	PublishedAt  *time.Time `json:"publishedAt"`
}

// CreatePage creates a page. The slug is derived from Slug or, when empty,
// from Title, and made unique by appending -2, -3, ...
func (s *PageService) CreatePage(ctx context.Context, in CreatePageInput) (*domain.Page, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.New(errs.ErrCodeInvalidInput, "title is required")
	}
	base := in.Slug
	if base == "" {
		base = title
	}
	pageSlug, err := s.uniqueSlug(ctx, base)
	if err != nil {
		return nil, err
	}

	p := &domain.Page{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		Slug:         pageSlug,
		Title:        title,
		Description:  in.Description,
		StyleJSON:    jsonOrEmpty(in.StyleJSON),
		SettingsJSON: jsonOrEmpty(in.SettingsJSON),
		IsActive:     in.IsActive == nil || *in.IsActive,
		PublishedAt:  in.PublishedAt,
	}
	if err := s.pages.CreatePage(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("page created", zap.String("page", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

func (s *PageService) uniqueSlug(ctx context.Context, text string) (string, error) {
	base := slug.Make(text)
	if base == "" {
		base = "page"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		taken, err := s.pages.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// GetPage resolves a page by id, falling back to slug.
func (s *PageService) GetPage(ctx context.Context, ref string) (*domain.Page, error) {
	p, err := s.pages.GetPage(ctx, ref)
	if err == nil || !errs.Is(err, errs.ErrCodeNotFound) {
		return p, err
	}
	return s.pages.GetPageBySlug(ctx, ref)
}

// ListPages returns a tenant's pages, newest first. An empty tenant lists
// every page.
func (s *PageService) ListPages(ctx context.Context, tenantID string) ([]domain.Page, error) {
	return s.pages.ListPages(ctx, tenantID)
}

// UpdatePageInput carries editable page fields. Nil fields are left
// unchanged; the slug is never regenerated.
type UpdatePageInput struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	StyleJSON    *string    `json:"styleJson"`
	SettingsJSON *string    `json:"settingsJson"`
	IsActive     *bool      `json:"isActive"`
	PublishedAt  *time.Time `json:"publishedAt"`
	Unpublish    bool       `json:"unpublish"`
}

func (s *PageService) UpdatePage(ctx context.Context, ref string, in UpdatePageInput) (*domain.Page, error) {
	p, err := s.GetPage(ctx, ref)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, errs.New(errs.ErrCodeInvalidInput, "title must not be empty")
		}
		p.Title = title
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.StyleJSON != nil {
		p.StyleJSON = jsonOrEmpty(*in.StyleJSON)
	}
	if in.SettingsJSON != nil {
		p.SettingsJSON = jsonOrEmpty(*in.SettingsJSON)
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.PublishedAt != nil {
		p.PublishedAt = in.PublishedAt
	}
	if in.Unpublish {
		p.PublishedAt = nil
	}
	if err := s.pages.UpdatePage(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePage removes a page with its blocks and layout history.
func (s *PageService) DeletePage(ctx context.Context, ref string) error {
	p, err := s.GetPage(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.pages.DeletePage(ctx, p.ID); err != nil {
		return err
	}
	s.logger.Info("page deleted", zap.String("page", p.ID))
	s.emitter.Emit(ctx, EventBlocksChanged, PageEvent{PageID: p.ID, Action: "delete-page"})
	return nil
}

// GetPageState returns a page with its blocks.
func (s *PageService) GetPageState(ctx context.Context, ref string) (*domain.PageState, error) {
	p, err := s.GetPage(ctx, ref)
	if err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListBlocks(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if blocks == nil {
		blocks = []domain.Block{}
	}
	return &domain.PageState{Page: *p, Published: p.IsPublished(), Blocks: blocks}, nil
}

// RecordView counts a page view and returns the updated page.
func (s *PageService) RecordView(ctx context.Context, ref string) (*domain.Page, error) {
	p, err := s.GetPage(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.pages.IncrementViews(ctx, p.ID, s.now()); err != nil {
		return nil, err
	}
	return s.pages.GetPage(ctx, p.ID)
}
