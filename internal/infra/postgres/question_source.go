package postgres

import (
	"context"
	"fmt"

	"exam-duel-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	documentQuestionsQuery = `SELECT id, content, created_at FROM questions
WHERE NOT archived ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	sectionQuestionsQuery = `SELECT id, content, created_at FROM section_questions
ORDER BY created_at DESC LIMIT $1 OFFSET $2`
)

// QuestionSource reads raw question records, newest first, straight from the
// content tables with pgx.
type QuestionSource struct {
	pool  *pgxpool.Pool
	name  string
	query string
}

// NewDocumentSource reads the authored question bank.
func NewDocumentSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool, name: "question", query: documentQuestionsQuery}
}

// NewSectionSource reads questions attached to syllabus sections.
func NewSectionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool, name: "section_question", query: sectionQuestionsQuery}
}

func (s *QuestionSource) Name() string {
	return s.name
}

func (s *QuestionSource) FetchCandidates(ctx context.Context, limit, offset int) ([]domain.RawQuestion, error) {
	rows, err := s.pool.Query(ctx, s.query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load %s candidates: %w", s.name, err)
	}
	defer rows.Close()

	var records []domain.RawQuestion
	for rows.Next() {
		rec := domain.RawQuestion{Source: s.name}
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s candidate: %w", s.name, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s candidates: %w", s.name, err)
	}
	return records, nil
}
