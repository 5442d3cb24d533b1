package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"maglink/internal/domain"
	"maglink/internal/errs"
	"maglink/internal/service"
)

// ── Pages ──────────────────────────────────────────────────

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.pages.ListPages(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pages == nil {
		pages = []domain.Page{}
	}
	writeJSON(w, http.StatusOK, envelope{"pages": pages})
}

func (s *Server) createPage(w http.ResponseWriter, r *http.Request) {
	var in service.CreatePageInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.pages.CreatePage(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"page": p})
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.pages.GetPage(r.Context(), chi.URLParam(r, "page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"page": p})
}

func (s *Server) updatePage(w http.ResponseWriter, r *http.Request) {
	var in service.UpdatePageInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.pages.UpdatePage(r.Context(), chi.URLParam(r, "page"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"page": p})
}

func (s *Server) deletePage(w http.ResponseWriter, r *http.Request) {
	if err := s.pages.DeletePage(r.Context(), chi.URLParam(r, "page")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{})
}

func (s *Server) getPageState(w http.ResponseWriter, r *http.Request) {
	state, err := s.pages.GetPageState(r.Context(), chi.URLParam(r, "page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"page": state.Page, "published": state.Published, "blocks": state.Blocks})
}

func (s *Server) recordView(w http.ResponseWriter, r *http.Request) {
	p, err := s.pages.RecordView(r.Context(), chi.URLParam(r, "page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"page": p})
}

// pageID resolves the {page} parameter, which may be an id or a slug.
func (s *Server) pageID(r *http.Request) (string, error) {
	p, err := s.pages.GetPage(r.Context(), chi.URLParam(r, "page"))
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (s *Server) repackPage(w http.ResponseWriter, r *http.Request) {
	id, err := s.pageID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.blocks.RepackPage(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"layout": outcome})
}

func (s *Server) checkPage(w http.ResponseWriter, r *http.Request) {
	id, err := s.pageID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	collisions, err := s.blocks.CheckPage(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"overlapping": len(collisions) > 0, "collisions": nonNil(collisions)})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := s.pageID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snaps, err := s.blocks.ListSnapshots(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"snapshots": nonNil(snaps)})
}

func (s *Server) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := s.pageID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.blocks.RestoreSnapshot(r.Context(), id, chi.URLParam(r, "snapshot"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"layout": outcome})
}

// ── Blocks ─────────────────────────────────────────────────

func (s *Server) createBlock(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBlockInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	b, outcome, err := s.blocks.CreateBlock(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"block": b, "layout": outcome})
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	b, err := s.blocks.GetBlock(r.Context(), chi.URLParam(r, "block"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"block": b})
}

func (s *Server) updateBlock(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateBlockInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.blocks.UpdateBlock(r.Context(), chi.URLParam(r, "block"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"block": b})
}

func (s *Server) deleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.blocks.DeleteBlock(r.Context(), chi.URLParam(r, "block")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{})
}

func (s *Server) deleteAllBlocks(w http.ResponseWriter, r *http.Request) {
	id, err := s.pageID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.blocks.DeleteAllForPage(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"deleted_count": n})
}

type positionsRequest struct {
	Positions []service.PositionUpdate `json:"positions"`
}

func (s *Server) updatePositions(w http.ResponseWriter, r *http.Request) {
	var req positionsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.Positions) == 0 {
		s.fail(w, r, errs.New(errs.ErrCodeInvalidInput, "positions must be a non-empty array"))
		return
	}
	res, err := s.blocks.UpdatePositions(r.Context(), req.Positions)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"updated":  res.Updated,
		"layouts":  res.Outcomes,
		"skipped":  nonNil(res.Skipped),
		"repacked": anyRepacked(res.Outcomes),
	})
}

type positionRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

func (s *Server) updatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.X == nil || req.Y == nil {
		s.fail(w, r, errs.New(errs.ErrCodeInvalidInput, "x and y are required"))
		return
	}
	b, outcome, err := s.blocks.UpdatePosition(r.Context(), chi.URLParam(r, "block"), *req.X, *req.Y)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"block": b, "layout": outcome})
}

type sizeRequest struct {
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

func (s *Server) updateSize(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Width == nil || req.Height == nil {
		s.fail(w, r, errs.New(errs.ErrCodeInvalidInput, "width and height are required"))
		return
	}
	b, outcome, err := s.blocks.UpdateSize(r.Context(), chi.URLParam(r, "block"), *req.Width, *req.Height)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"block": b, "layout": outcome})
}

func anyRepacked(outcomes []service.LayoutOutcome) bool {
	for _, o := range outcomes {
		if o.Repacked {
			return true
		}
	}
	return false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
