package redis

import (
	"context"
	"testing"
	"time"

	"exam-duel-service/internal/domain"
	"exam-duel-service/internal/infra/memory"
)

func TestCachedSourceCachesInRedis(t *testing.T) {
	mr, client := newClient(t)

	source := &countingSource{StaticSource: memory.NewStaticSource("question", sampleRecords())}
	cached := NewCachedSource(client, source, time.Minute)

	records, err := cached.FetchCandidates(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if source.calls != 1 {
		t.Fatalf("expected source called once, got %d", source.calls)
	}
	if !mr.Exists("questions:question:10:0") {
		t.Fatalf("expected batch to be cached")
	}

	// Second call should hit cache, source not incremented.
	records, _ = cached.FetchCandidates(context.Background(), 10, 0)
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}
	if records[1].Content != "Capital of Italy? {=Rome ~Paris}" {
		t.Fatalf("unexpected cached content %q", records[1].Content)
	}
}

func TestCachedSourceExpires(t *testing.T) {
	mr, client := newClient(t)

	source := &countingSource{StaticSource: memory.NewStaticSource("question", sampleRecords())}
	cached := NewCachedSource(client, source, time.Minute)

	_, _ = cached.FetchCandidates(context.Background(), 10, 0)
	mr.FastForward(2 * time.Minute)
	_, _ = cached.FetchCandidates(context.Background(), 10, 0)
	if source.calls != 2 {
		t.Fatalf("expected reload after expiry, source calls=%d", source.calls)
	}
}

type countingSource struct {
	*memory.StaticSource
	calls int
}

func (s *countingSource) FetchCandidates(ctx context.Context, limit, offset int) ([]domain.RawQuestion, error) {
	s.calls++
	return s.StaticSource.FetchCandidates(ctx, limit, offset)
}

func sampleRecords() []domain.RawQuestion {
	return []domain.RawQuestion{
		{ID: "q1", Source: "question", Content: "2 + 2? {=4 ~3 ~5}"},
		{ID: "q2", Source: "question", Content: "Capital of Italy? {=Rome ~Paris}"},
	}
}
