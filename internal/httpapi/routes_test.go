package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/abluka/internal/hub"
	"github.com/DoyleJ11/abluka/internal/store"
)

func newRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zaptest.NewLogger(t)
	opts.Logger = log
	return SetupRoutes(hub.NewHub(ctx, store.NewMemory(), log), opts)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h := newRouter(t, Options{CreateRate: 100, CreateBurst: 100})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "missing", method: http.MethodGet, path: "/sessions/NOPE00", want: http.StatusNotFound},
		{name: "create", method: http.MethodPost, path: "/sessions", body: `{"code":"ABC123","player1":{"ready":true,"connected":true},"player2":null}`, want: http.StatusCreated},
		{name: "duplicate", method: http.MethodPost, path: "/sessions", body: `{"code":"ABC123"}`, want: http.StatusConflict},
		{name: "bad code", method: http.MethodPost, path: "/sessions", body: `{"code":"abc"}`, want: http.StatusBadRequest},
		{name: "bad json", method: http.MethodPost, path: "/sessions", body: `{`, want: http.StatusBadRequest},
		{name: "get", method: http.MethodGet, path: "/sessions/ABC123", want: http.StatusOK},
		{name: "patch", method: http.MethodPatch, path: "/sessions/ABC123", body: `{"player2":{"connected":true}}`, want: http.StatusOK},
		{name: "patch missing", method: http.MethodPatch, path: "/sessions/NOPE00", body: `{}`, want: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/sessions/ABC123", want: http.StatusNoContent},
		{name: "delete again", method: http.MethodDelete, path: "/sessions/ABC123", want: http.StatusNotFound},
		{name: "feed without code", method: http.MethodGet, path: "/ws", want: http.StatusBadRequest},
		{name: "feed for missing session", method: http.MethodGet, path: "/ws?code=NOPE00", want: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPatchMergesSlots(t *testing.T) {
	h := newRouter(t, Options{})

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions", `{"code":"ABC123","player1":{"ready":true,"connected":true,"name":"Ada"}}`).Code)
	rec := do(t, h, http.MethodPatch, "/sessions/ABC123", `{"player1":{"ready":false}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"player1":{"ready":false,"connected":true,"name":"Ada"}`)
}

func TestCreateIsRateLimited(t *testing.T) {
	h := newRouter(t, Options{CreateRate: 0.001, CreateBurst: 2})

	codes := []string{"AAA111", "BBB222", "CCC333"}
	var got []int
	for _, code := range codes {
		got = append(got, do(t, h, http.MethodPost, "/sessions", `{"code":"`+code+`"}`).Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, got)

	// reads are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/sessions/AAA111", "").Code)
}
