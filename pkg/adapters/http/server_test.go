package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatewright/passage"
	httpAdapter "github.com/gatewright/passage/pkg/adapters/http"
	"github.com/gatewright/passage/pkg/adapters/memory"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/gatewright/passage/pkg/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	g, err := domain.NewGraph(domain.GraphSpec{
		Name:    "upload",
		States:  []string{"idle", "uploading", "processing", "done"},
		Initial: "idle",
		Transitions: []domain.TransitionSpec{
			{Name: "start", From: []string{"idle"}, To: "uploading"},
			{Name: "success", From: []string{"uploading"}, To: "processing"},
			{Name: "success_process", From: []string{"processing"}, To: "done"},
		},
	})
	require.NoError(t, err)

	guards := guard.NewRegistry()
	guards.Register("upload", "success_process", "optimized", func(ctx context.Context, in guard.Input) error {
		if done, _ := in.Context["optimization_complete"].(bool); !done {
			return errors.New("optimization not complete")
		}
		return nil
	})

	engine, err := passage.New(memory.NewStore(),
		passage.WithGraph(g),
		passage.WithGuards(guards),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(httpAdapter.NewHandler(engine))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createEntity(t *testing.T, srv *httptest.Server) httpAdapter.EntityResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/graphs/upload/entities", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[httpAdapter.EntityResponse](t, resp)
}

func intPtr(v int64) *int64 { return &v }

func TestCreateEntity(t *testing.T) {
	srv := newTestServer(t)

	entity := createEntity(t, srv)
	assert.NotEmpty(t, entity.ID)
	assert.Equal(t, "upload", entity.Graph)
	assert.Equal(t, "idle", entity.State)
	assert.Equal(t, int64(0), entity.Version)
	assert.Equal(t, []string{"start"}, entity.AllowedEvents)
}

func TestCreateEntity_UnknownGraph(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/graphs/orders/entities", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[httpAdapter.ErrorResponse](t, resp)
	assert.Equal(t, "graph_not_found", body.Code)
}

func TestApplyTransition_HappyPath(t *testing.T) {
	srv := newTestServer(t)
	entity := createEntity(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/entities/%s/transitions", srv.URL, entity.ID),
		httpAdapter.TransitionRequest{Event: "start", ExpectedVersion: intPtr(0)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[httpAdapter.TransitionResponse](t, resp)
	assert.Equal(t, "idle", body.From)
	assert.Equal(t, "uploading", body.To)
	assert.Equal(t, int64(1), body.Version)
	assert.Equal(t, []string{"success"}, body.AllowedEvents)
}

func TestApplyTransition_ValidatesBody(t *testing.T) {
	srv := newTestServer(t)
	entity := createEntity(t, srv)
	url := fmt.Sprintf("%s/entities/%s/transitions", srv.URL, entity.ID)

	resp := postJSON(t, url, httpAdapter.TransitionRequest{ExpectedVersion: intPtr(0)})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "event_required", decode[httpAdapter.ErrorResponse](t, resp).Code)

	resp = postJSON(t, url, map[string]any{"event": "start"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "expected_version_required", decode[httpAdapter.ErrorResponse](t, resp).Code)
}

func TestApplyTransition_IllegalTransition(t *testing.T) {
	srv := newTestServer(t)
	entity := createEntity(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/entities/%s/transitions", srv.URL, entity.ID),
		httpAdapter.TransitionRequest{Event: "success", ExpectedVersion: intPtr(0)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "illegal_transition", decode[httpAdapter.ErrorResponse](t, resp).Code)
}

func TestApplyTransition_GuardRejected(t *testing.T) {
	srv := newTestServer(t)
	entity := createEntity(t, srv)
	url := fmt.Sprintf("%s/entities/%s/transitions", srv.URL, entity.ID)

	resp := postJSON(t, url, httpAdapter.TransitionRequest{Event: "start", ExpectedVersion: intPtr(0)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, url, httpAdapter.TransitionRequest{Event: "success", ExpectedVersion: intPtr(1)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, url, httpAdapter.TransitionRequest{Event: "success_process", ExpectedVersion: intPtr(2)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[httpAdapter.ErrorResponse](t, resp)
	assert.Equal(t, "guard_rejected", body.Code)
	assert.Equal(t, "optimization not complete", body.Reason)

	// Same call with context satisfying the guard commits.
	resp = postJSON(t, url, httpAdapter.TransitionRequest{
		Event:           "success_process",
		ExpectedVersion: intPtr(2),
		Context:         map[string]any{"optimization_complete": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "done", decode[httpAdapter.TransitionResponse](t, resp).To)
}

func TestApplyTransition_VersionConflict(t *testing.T) {
	srv := newTestServer(t)
	entity := createEntity(t, srv)
	url := fmt.Sprintf("%s/entities/%s/transitions", srv.URL, entity.ID)

	resp := postJSON(t, url, httpAdapter.TransitionRequest{Event: "start", ExpectedVersion: intPtr(0)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Stale caller still holding version 0.
	resp = postJSON(t, url, httpAdapter.TransitionRequest{Event: "success", ExpectedVersion: intPtr(0)})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[httpAdapter.ErrorResponse](t, resp)
	assert.Equal(t, "version_conflict", body.Code)
	require.NotNil(t, body.Expected)
	require.NotNil(t, body.Actual)
	assert.Equal(t, int64(0), *body.Expected)
	assert.Equal(t, int64(1), *body.Actual)
}

func TestGetEntity(t *testing.T) {
	srv := newTestServer(t)
	entity := createEntity(t, srv)

	postJSON(t, fmt.Sprintf("%s/entities/%s/transitions", srv.URL, entity.ID),
		httpAdapter.TransitionRequest{Event: "start", ExpectedVersion: intPtr(0)}).Body.Close()

	resp, err := http.Get(fmt.Sprintf("%s/entities/%s", srv.URL, entity.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[httpAdapter.EntityResponse](t, resp)
	assert.Equal(t, "uploading", body.State)
	assert.Equal(t, int64(1), body.Version)
	assert.Equal(t, []string{"success"}, body.AllowedEvents)
	require.Len(t, body.Log, 1)
	assert.Equal(t, domain.OutcomeCommitted, body.Log[0].Outcome)
}

func TestGetEntity_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/entities/missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "entity_not_found", decode[httpAdapter.ErrorResponse](t, resp).Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
