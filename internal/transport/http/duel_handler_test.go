package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-duel-service/internal/domain"
)

func TestDuelLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, "")
	id := env.createDuel(t, 2)

	resp, body := env.do(t, http.MethodGet, "/duels/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(domain.DuelPending), body["status"])
	assert.Equal(t, float64(5), body["stake"])
	assert.Len(t, env.gateway.Messages(bob), 1, "invitation")

	resp, _ = env.do(t, http.MethodPost, "/duels/"+id+"/accept", map[string]string{"userId": alice})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/duels/"+id+"/accept", map[string]string{"userId": bob})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, string(domain.DuelActive), body["status"])
	assert.Equal(t, float64(1), body["currentQuestion"])
	assert.Len(t, env.gateway.Polls(), 2)

	resp, _ = env.do(t, http.MethodPost, "/duels/"+id+"/accept", map[string]string{"userId": bob})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/duels/"+id+"/withdraw", map[string]string{"userId": alice})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRejectAndWithdraw(t *testing.T) {
	env := newTestEnv(t, nil, "")

	id := env.createDuel(t, 1)
	resp, body := env.do(t, http.MethodPost, "/duels/"+id+"/reject", map[string]string{"userId": bob})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(domain.DuelCancelled), body["status"])

	id = env.createDuel(t, 1)
	resp, _ = env.do(t, http.MethodPost, "/duels/"+id+"/withdraw", map[string]string{"userId": bob})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/duels/"+id+"/withdraw", map[string]string{"userId": alice})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateDuelErrors(t *testing.T) {
	env := newTestEnv(t, nil, "")
	env.store.SetBalance(alice, 100)
	env.store.SetBalance(bob, 100)

	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{
			name:   "missing challenged id",
			body:   map[string]any{"challenger": map[string]any{"id": alice}},
			status: http.StatusBadRequest,
		},
		{
			name:   "self challenge",
			body:   map[string]any{"challenger": map[string]any{"id": alice}, "challenged": map[string]any{"id": alice}},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown type",
			body:   map[string]any{"challenger": map[string]any{"id": alice}, "challenged": map[string]any{"id": bob}, "type": "marathon"},
			status: http.StatusBadRequest,
		},
		{
			name:   "too many questions",
			body:   map[string]any{"challenger": map[string]any{"id": alice}, "challenged": map[string]any{"id": bob}, "questionsCount": 21},
			status: http.StatusBadRequest,
		},
		{
			name:   "stake above balance",
			body:   map[string]any{"challenger": map[string]any{"id": alice}, "challenged": map[string]any{"id": bob}, "stake": 500},
			status: http.StatusUnprocessableEntity,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/duels", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode, body)
			assert.NotEmpty(t, body["message"])
		})
	}

	env.createDuel(t, 1)
	resp, _ := env.do(t, http.MethodPost, "/duels", map[string]any{
		"challenger": map[string]any{"id": bob},
		"challenged": map[string]any{"id": alice},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "one pending duel per pair")
}

func TestGetUnknownDuelAndStats(t *testing.T) {
	env := newTestEnv(t, nil, "")

	resp, _ := env.do(t, http.MethodGet, "/duels/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/participants/"+alice+"/stats", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.createDuel(t, 1)
	resp, body := env.do(t, http.MethodGet, "/participants/"+alice+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, alice, body["participantId"])
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, "")
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
