package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"maglink/internal/config"
	"maglink/internal/layout"
	"maglink/internal/pagelock"
	"maglink/internal/service"
	"maglink/internal/storage"
)

type testAPI struct {
	handler http.Handler
	blocks  *service.BlockService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := storage.New(context.Background(), config.StorageConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	emitter := service.NewLogEmitter(logger)
	pageStore := storage.NewPageStore(db)
	blockStore := storage.NewBlockStore(db)
	blocks := service.NewBlockService(
		blockStore, pageStore, storage.NewSnapshotStore(db, storage.DefaultMaxSnapshots),
		pagelock.NewMemory(), layout.NewEngine(layout.NewGrid(4)), emitter, logger,
	)
	pages := service.NewPageService(pageStore, blockStore, emitter, logger)
	return &testAPI{handler: New(pages, blocks, logger, 0).Handler(), blocks: blocks}
}

// do sends a request and decodes the JSON envelope.
func (a *testAPI) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return rec.Code, out
}

func (a *testAPI) createPage(t *testing.T, title string) map[string]any {
	t.Helper()
	status, out := a.do(t, http.MethodPost, "/api/pages", `{"title":"`+title+`","tenantId":"t1"}`)
	require.Equal(t, http.StatusCreated, status, out)
	return out["page"].(map[string]any)
}

func (a *testAPI) createBlock(t *testing.T, body string) (int, map[string]any) {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/page-blocks", body)
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	status, out := api.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "ok", out["status"])
}

func TestPages_Lifecycle(t *testing.T) {
	api := newTestAPI(t)
	page := api.createPage(t, "My Links")
	assert.Equal(t, "my-links", page["slug"])

	status, out := api.do(t, http.MethodGet, "/api/pages/my-links", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, page["id"], out["page"].(map[string]any)["id"])

	status, out = api.do(t, http.MethodGet, "/api/pages?tenant=t1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["pages"], 1)

	status, out = api.do(t, http.MethodPut, "/api/pages/my-links", `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Renamed", out["page"].(map[string]any)["title"])

	status, out = api.do(t, http.MethodPost, "/api/pages/my-links/views", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, out["page"].(map[string]any)["views"])

	status, out = api.do(t, http.MethodGet, "/api/pages/my-links/state", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, out["blocks"])
	assert.Equal(t, false, out["published"])

	status, _ = api.do(t, http.MethodDelete, "/api/pages/my-links", "")
	require.Equal(t, http.StatusOK, status)
	status, out = api.do(t, http.MethodGet, "/api/pages/my-links", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(out))
	assert.Equal(t, false, out["success"])
}

func TestBlocks_CreateCollidingRepacks(t *testing.T) {
	api := newTestAPI(t)
	page := api.createPage(t, "Grid")
	pageID := page["id"].(string)

	status, out := api.createBlock(t, `{"pageId":"`+pageID+`","x":0,"y":0,"width":2,"height":2}`)
	require.Equal(t, http.StatusCreated, status, out)
	status, out = api.createBlock(t, `{"pageId":"`+pageID+`","x":1,"y":0,"width":2,"height":2}`)
	require.Equal(t, http.StatusCreated, status, out)

	block := out["block"].(map[string]any)
	lay := out["layout"].(map[string]any)
	assert.Equal(t, true, lay["repacked"])
	assert.EqualValues(t, 2, block["x"])

	status, out = api.do(t, http.MethodGet, "/api/pages/grid/overlaps", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, out["overlapping"])

	status, out = api.do(t, http.MethodGet, "/api/pages/grid/snapshots", "")
	require.Equal(t, http.StatusOK, status)
	snaps := out["snapshots"].([]any)
	require.Len(t, snaps, 1)
	snapID := snaps[0].(map[string]any)["id"].(string)

	status, out = api.do(t, http.MethodPost, "/api/pages/grid/snapshots/"+snapID+"/restore", "")
	require.Equal(t, http.StatusOK, status, out)

	status, out = api.do(t, http.MethodPost, "/api/pages/grid/repack", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, out["layout"].(map[string]any)["repacked"])
}

func TestBlocks_Validation(t *testing.T) {
	api := newTestAPI(t)
	page := api.createPage(t, "Checks")
	pageID := page["id"].(string)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"fractional x", `{"pageId":"` + pageID + `","x":1.5,"y":0}`, http.StatusUnprocessableEntity, "INVALID_INPUT"},
		{"string width", `{"pageId":"` + pageID + `","width":"wide"}`, http.StatusUnprocessableEntity, "INVALID_INPUT"},
		{"too wide", `{"pageId":"` + pageID + `","width":9}`, http.StatusUnprocessableEntity, "INVALID_INPUT"},
		{"too tall", `{"pageId":"` + pageID + `","height":35184372088832}`, http.StatusUnprocessableEntity, "INVALID_INPUT"},
		{"past last row", `{"pageId":"` + pageID + `","x":0,"y":9223372036854775806,"height":2}`, http.StatusUnprocessableEntity, "INVALID_INPUT"},
		{"unknown page", `{"pageId":"missing"}`, http.StatusNotFound, "NOT_FOUND"},
		{"malformed", `{"pageId":`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, out := api.createBlock(t, tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, errorCode(out))
		})
	}
}

func TestBlocks_LimitExceeded(t *testing.T) {
	api := newTestAPI(t)
	page := api.createPage(t, "Small")
	api.blocks.SetBlockLimit(1)

	body := `{"pageId":"` + page["id"].(string) + `"}`
	status, _ := api.createBlock(t, body)
	require.Equal(t, http.StatusCreated, status)
	status, out := api.createBlock(t, body)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "LIMIT_EXCEEDED", errorCode(out))
}

func TestBlocks_MoveResizeDelete(t *testing.T) {
	api := newTestAPI(t)
	page := api.createPage(t, "Moves")
	pageID := page["id"].(string)

	_, out := api.createBlock(t, `{"pageId":"`+pageID+`","x":0,"y":0,"width":1,"height":1}`)
	a := out["block"].(map[string]any)["id"].(string)
	_, out = api.createBlock(t, `{"pageId":"`+pageID+`","x":1,"y":0,"width":1,"height":1}`)
	b := out["block"].(map[string]any)["id"].(string)

	status, out := api.do(t, http.MethodPost, "/api/page-blocks/positions",
		`{"positions":[{"id":"`+b+`","x":0,"y":0},{"id":"ghost","x":0,"y":0},{"id":"`+a+`"}]}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.EqualValues(t, 1, out["updated"])
	assert.Equal(t, true, out["repacked"])
	assert.Len(t, out["skipped"], 2)

	status, out = api.do(t, http.MethodPost, "/api/page-blocks/positions", `{"positions":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, out = api.do(t, http.MethodPost, "/api/page-blocks/"+a+"/size", `{"width":2,"height":1}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.EqualValues(t, 2, out["block"].(map[string]any)["width"])

	status, _ = api.do(t, http.MethodPost, "/api/page-blocks/"+a+"/size", `{"width":5,"height":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	status, _ = api.do(t, http.MethodPost, "/api/page-blocks/"+a+"/size", `{"width":1,"height":8589934592}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	status, _ = api.do(t, http.MethodPost, "/api/page-blocks/"+a+"/position", `{"x":0,"y":9223372036854775806}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, out = api.do(t, http.MethodPost, "/api/page-blocks/"+a+"/position", `{"x":2,"y":3}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.EqualValues(t, 3, out["block"].(map[string]any)["y"])

	status, _ = api.do(t, http.MethodPost, "/api/page-blocks/"+a+"/position", `{"x":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, out = api.do(t, http.MethodPut, "/api/page-blocks/"+a, `{"title":"Hello"}`)
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, "Hello", out["block"].(map[string]any)["title"])

	status, _ = api.do(t, http.MethodDelete, "/api/page-blocks/"+a, "")
	require.Equal(t, http.StatusOK, status)
	status, _ = api.do(t, http.MethodGet, "/api/page-blocks/"+a, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, out = api.do(t, http.MethodDelete, "/api/page-blocks/delete-all/"+pageID, "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, out["deleted_count"])
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	status, out := api.do(t, http.MethodGet, "/api/nowhere", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(out))
}

func TestRecoverer(t *testing.T) {
	h := recoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor("UNAVAILABLE"))
	assert.Equal(t, http.StatusConflict, statusFor("CONFLICT"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("WHATEVER"))
}
