package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mroche14/flowline/internal/adapters/memory"
	"github.com/mroche14/flowline/internal/runtime"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/session"
)

const scenarioV1 = `
scenario: support
version: 1
steps:
  - id: triage
    is_entry: true
    transitions:
      - target: done
  - id: done
    is_terminal: true
`

const scenarioV2 = `
scenario: support
version: 2
steps:
  - id: triage
    is_entry: true
    collects_fields: [topic]
    transitions:
      - target: done
  - id: done
    is_terminal: true
`

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	graphs := memory.NewGraphStore()
	engine := runtime.NewEngine(graphs, memory.NewFactStore(), nil)
	sessions := session.NewManager(memory.NewSessionStore())
	return NewHandler(NewServer(engine, sessions, graphs))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func publish(t *testing.T, h http.Handler, yaml string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/scenarios/", strings.NewReader(yaml))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGetHealth(t *testing.T) {
	rr := doJSON(t, newTestHandler(t), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestPublishScenario(t *testing.T) {
	h := newTestHandler(t)

	rr := publish(t, h, scenarioV1)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var first PublishResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	assert.Equal(t, "support", first.ScenarioID)
	assert.Equal(t, 1, first.Version)
	assert.Nil(t, first.Plan, "first version has nothing to migrate from")

	// The second version returns the generated plan summary for review.
	rr = publish(t, h, scenarioV2)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var second PublishResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	require.NotNil(t, second.Plan)
	assert.NotEmpty(t, second.Plan.Counts)

	// And the plan is retrievable afterwards.
	rr = doJSON(t, h, http.MethodGet, "/v1/scenarios/support/plans/1/2", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPublishScenario_Rejections(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, publish(t, h, scenarioV1).Code)

	assert.Equal(t, http.StatusConflict, publish(t, h, scenarioV1).Code, "same version again must not publish")
	assert.Equal(t, http.StatusUnprocessableEntity, publish(t, h, "scenario: broken\n").Code)
}

func TestGetScenario(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, publish(t, h, scenarioV1).Code)

	rr := doJSON(t, h, http.MethodGet, "/v1/scenarios/support", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ScenarioResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Version)
	assert.Len(t, resp.Steps, 2)

	assert.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, "/v1/scenarios/ghost", nil).Code)
}

func TestTurnLifecycle(t *testing.T) {
	h := newTestHandler(t)
	require.Equal(t, http.StatusCreated, publish(t, h, scenarioV1).Code)

	turn := TurnRequest{
		Tenant: "acme", Agent: "bot", Interlocutor: "u1", Channel: "web",
		EntryCandidates: map[string]float64{"support": 0.9},
	}
	rr := doJSON(t, h, http.MethodPost, "/v1/turn", turn)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, domain.ResultContinue, resp.Result.Type)
	assert.Equal(t, "triage", resp.Result.Target)
	assert.Equal(t, "support", resp.Session.ActiveScenarioID)

	// The committed session is visible through the session endpoint.
	rr = doJSON(t, h, http.MethodGet, "/v1/sessions/acme/bot/u1/web", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var state domain.SessionState
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, "triage", state.ActiveStepID)

	rr = doJSON(t, h, http.MethodDelete, "/v1/sessions/acme/bot/u1/web", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, "/v1/sessions/acme/bot/u1/web", nil).Code)
}

func TestTurn_RequiresIdentity(t *testing.T) {
	h := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/v1/turn", TurnRequest{Agent: "bot"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
