package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/catalog"
	"github.com/parleyhq/parley/pkg/session"
	"github.com/parleyhq/parley/pkg/web"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newApp(t *testing.T) (*fiber.App, *session.Store) {
	t.Helper()

	logger := testLogger()

	cat, err := catalog.New(logger)
	require.NoError(t, err)

	store := session.NewStore(session.Config{}, nil, logger)
	handlers := web.NewAPIHandlers(store, cat, validator.New(validator.WithRequiredStructEnabled()), logger)

	return web.NewApp(handlers), store
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}

func TestHealthCheck(t *testing.T) {
	app, _ := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "parley", body["service"])
}

func TestGetWorkflows(t *testing.T) {
	app, _ := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	workflows, ok := body["workflows"].([]any)
	require.True(t, ok)
	require.Len(t, workflows, 3)

	first, ok := workflows[0].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, first["id"])
	assert.NotEmpty(t, first["name"])
	assert.NotZero(t, first["steps"])
}

func TestCreateSession(t *testing.T) {
	app, store := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/sessions/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode(t, resp)
	sessionID, ok := body["session_id"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, sessionID)

	_, err = store.Get(sessionID)
	assert.NoError(t, err)
}

func TestCreateSessionWithPinnedID(t *testing.T) {
	app, store := newApp(t)

	payload := bytes.NewBufferString(`{"session_id": "client-chosen-id"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, err = store.Get("client-chosen-id")
	assert.NoError(t, err)

	// same id again conflicts
	payload = bytes.NewBufferString(`{"session_id": "client-chosen-id"}`)
	req = httptest.NewRequest(http.MethodPost, "/sessions/", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateSessionRejectsShortID(t *testing.T) {
	app, _ := newApp(t)

	payload := bytes.NewBufferString(`{"session_id": "x"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	app, store := newApp(t)

	_, err := store.Create("session-to-delete")
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/sessions/session-to-delete", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, store.Len())

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/sessions/session-to-delete", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionStats(t *testing.T) {
	app, store := newApp(t)

	for _, id := range []string{"stat-session-a", "stat-session-b"} {
		sess, err := store.Create(id)
		require.NoError(t, err)

		sess.AppendMessage("user", "hello")
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.EqualValues(t, 2, body["total_sessions"])
	assert.EqualValues(t, 2, body["total_messages"])
}
