package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/content"
	"exam-duel-service/internal/domain"
)

// CandidateSource is a question source queried with a fixed batch size.
type CandidateSource struct {
	Source QuestionSource
	Limit  int
}

// Selector pulls, parses and samples the question set of a duel.
type Selector struct {
	sources  []CandidateSource
	rnd      Random
	log      logrus.FieldLogger
	observer Observer
}

// SelectorOption customises a Selector.
type SelectorOption func(*Selector)

func WithSelectorLogger(log logrus.FieldLogger) SelectorOption {
	return func(s *Selector) { s.log = log }
}

func WithSelectorRandom(r Random) SelectorOption {
	return func(s *Selector) { s.rnd = r }
}

func WithSelectorObserver(o Observer) SelectorOption {
	return func(s *Selector) { s.observer = o }
}

// NewSelector queries sources in the given priority order.
func NewSelector(sources []CandidateSource, opts ...SelectorOption) *Selector {
	s := &Selector{
		sources:  sources,
		rnd:      NewLockedRandom(time.Now().UnixNano()),
		log:      logrus.StandardLogger(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns up to count validated questions in random order. Whole batches are
// parsed so the sample is drawn from more than the newest count records; later
// sources are only queried while the pool is short. Zero usable questions is an
// *domain.InsufficientQuestionsError.
func (s *Selector) Select(ctx context.Context, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, fmt.Errorf("select %d questions: %w", count, domain.ErrInvalidDuel)
	}

	var (
		pool      []domain.Question
		seen      = make(map[string]struct{})
		scanned   int
		skipped   int
		fetchErrs []error
	)
	for _, cs := range s.sources {
		if len(pool) >= count {
			break
		}
		name := cs.Source.Name()
		records, err := cs.Source.FetchCandidates(ctx, cs.Limit, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.WithError(err).WithField("source", name).Warn("question source unavailable")
			fetchErrs = append(fetchErrs, fmt.Errorf("source %s: %w", name, err))
			continue
		}

		for _, raw := range records {
			scanned++
			switch out := content.Parse(raw).(type) {
			case content.Parsed:
				key := out.Question.Source + "/" + out.Question.Ref
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				pool = append(pool, out.Question)
			case content.Skipped:
				skipped++
				s.observer.QuestionSkipped(name)
				s.log.WithFields(logrus.Fields{
					"source":      name,
					"question_id": raw.ID,
					"reason":      out.Reason,
				}).Warn("skipping question candidate")
			}
		}
	}

	if len(pool) == 0 {
		insufficient := &domain.InsufficientQuestionsError{Requested: count, Scanned: scanned, Skipped: skipped}
		return nil, errors.Join(append([]error{insufficient}, fetchErrs...)...)
	}
	if len(pool) < count {
		s.log.WithFields(logrus.Fields{"requested": count, "available": len(pool)}).
			Warn("degraded duel: fewer valid questions than requested")
	}

	s.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > count {
		pool = pool[:count]
	}
	return pool, nil
}
