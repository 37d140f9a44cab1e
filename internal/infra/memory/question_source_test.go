package memory

import (
	"context"
	"testing"
	"time"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
)

func TestCachedSourceCaches(t *testing.T) {
	source := &countingSource{QuestionSource: NewStaticSource("question", sampleRecords())}
	cached := NewCachedSource(source, time.Minute)

	if _, err := cached.FetchCandidates(context.Background(), 100, 0); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected source once, got %d", source.calls)
	}

	records, err := cached.FetchCandidates(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("fetch 2: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls %d", source.calls)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if _, err := cached.FetchCandidates(context.Background(), 1, 0); err != nil {
		t.Fatalf("fetch other page: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected a distinct batch to miss, source calls %d", source.calls)
	}
}

func TestCachedSourceExpires(t *testing.T) {
	source := &countingSource{QuestionSource: NewStaticSource("question", sampleRecords())}
	cached := NewCachedSource(source, time.Minute)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	cached.clock = func() time.Time { return now }

	_, _ = cached.FetchCandidates(context.Background(), 10, 0)
	now = now.Add(2 * time.Minute)
	_, _ = cached.FetchCandidates(context.Background(), 10, 0)

	if source.calls != 2 {
		t.Fatalf("expected reload after ttl, source calls %d", source.calls)
	}
}

func TestStaticSourcePages(t *testing.T) {
	source := NewStaticSource("question", sampleRecords())
	page, _ := source.FetchCandidates(context.Background(), 1, 1)
	if len(page) != 1 || page[0].ID != "r2" {
		t.Fatalf("unexpected page %+v", page)
	}
	page, _ = source.FetchCandidates(context.Background(), 5, 7)
	if len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}
}

type countingSource struct {
	app.QuestionSource
	calls int
}

func (s *countingSource) FetchCandidates(ctx context.Context, limit, offset int) ([]domain.RawQuestion, error) {
	s.calls++
	return s.QuestionSource.FetchCandidates(ctx, limit, offset)
}

func sampleRecords() []domain.RawQuestion {
	return []domain.RawQuestion{
		{ID: "r1", Source: "question", Content: "What is 2 + 2? {\n~3\n=4\n}"},
		{ID: "r2", Source: "question", Content: `{"question":"Capital of Spain?","options":["Madrid","Lisbon"],"correctIndex":0}`},
	}
}
