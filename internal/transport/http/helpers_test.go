package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
	"exam-duel-service/internal/infra/memory"
)

const (
	alice = "1001"
	bob   = "1002"
)

type testEnv struct {
	store   *memory.DuelStore
	gateway *memory.Gateway
	hub     *memory.EventHub
	service *app.DuelService
	server  *httptest.Server
}

func giftRecords(n int) []domain.RawQuestion {
	records := make([]domain.RawQuestion, n)
	for i := range records {
		records[i] = domain.RawQuestion{
			ID:      fmt.Sprintf("q%d", i+1),
			Source:  "question",
			Content: fmt.Sprintf("Statement %d {=right ~wrong ~other}", i+1),
		}
	}
	return records
}

func newTestEnv(t *testing.T, dedupe UpdateDeduper, secret string) *testEnv {
	t.Helper()
	log, _ := test.NewNullLogger()

	env := &testEnv{
		store:   memory.NewDuelStore(),
		gateway: memory.NewGateway(),
		hub:     memory.NewEventHub(),
	}
	selector := app.NewSelector(
		[]app.CandidateSource{{Source: memory.NewStaticSource("question", giftRecords(10)), Limit: 100}},
		app.WithSelectorLogger(log),
	)
	env.service = app.NewDuelService(env.store, selector, env.gateway, memory.NewScheduler(log), app.DefaultDuelSettings(),
		app.WithLogger(log),
		app.WithPublisher(env.hub),
	)

	router := NewRouter(RouterDeps{
		Duels:   NewDuelHandler(env.service, log),
		Webhook: NewWebhookHandler(env.service, dedupe, secret, log),
		Feed:    NewWSHandler(env.service, env.hub, log),
		Log:     log,
	})
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reader).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) createDuel(t *testing.T, questions int) string {
	t.Helper()
	e.store.SetBalance(alice, 100)
	e.store.SetBalance(bob, 100)
	resp, body := e.do(t, http.MethodPost, "/duels", map[string]any{
		"challenger":     map[string]any{"id": alice, "name": "Alice"},
		"challenged":     map[string]any{"id": bob, "name": "Bob"},
		"questionsCount": questions,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body["id"].(string)
}
