package qna

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zhouzirui/chat-relay/backend/internal/model/qna"
)

// Querier abstracts the pgx query methods the repository needs. Both
// *pgxpool.Pool and pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	topFAQsSQL = `SELECT faq_id, question, answer, views
		FROM faqs
		ORDER BY views DESC
		LIMIT $1`

	topTermsSQL = `SELECT term_id, term, definition, views
		FROM terms
		ORDER BY views DESC
		LIMIT $1`

	incrementFAQSQL  = `UPDATE faqs SET views = views + 1 WHERE question = $1`
	incrementTermSQL = `UPDATE terms SET views = views + 1 WHERE term = $1`
)

// Repository reads and bumps FAQ and glossary rows in the QnA database.
type Repository struct {
	db Querier
}

// NewRepository returns a Repository using db.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// TopFAQs returns the k most viewed FAQs.
func (r *Repository) TopFAQs(ctx context.Context, k int) ([]qna.FAQ, error) {
	rows, err := r.db.Query(ctx, topFAQsSQL, k)
	if err != nil {
		return nil, fmt.Errorf("qna: top faqs: %w", err)
	}
	defer rows.Close()

	var items []qna.FAQ
	for rows.Next() {
		var item qna.FAQ
		if err := rows.Scan(&item.ID, &item.Question, &item.Answer, &item.Views); err != nil {
			return nil, fmt.Errorf("qna: scan faq: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("qna: top faqs: %w", err)
	}
	return items, nil
}

// TopTerms returns the k most viewed glossary terms.
func (r *Repository) TopTerms(ctx context.Context, k int) ([]qna.Term, error) {
	rows, err := r.db.Query(ctx, topTermsSQL, k)
	if err != nil {
		return nil, fmt.Errorf("qna: top terms: %w", err)
	}
	defer rows.Close()

	var items []qna.Term
	for rows.Next() {
		var item qna.Term
		if err := rows.Scan(&item.ID, &item.Term, &item.Definition, &item.Views); err != nil {
			return nil, fmt.Errorf("qna: scan term: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("qna: top terms: %w", err)
	}
	return items, nil
}

// IncrementFAQViews adds one view to the FAQ with the given question text.
func (r *Repository) IncrementFAQViews(ctx context.Context, question string) error {
	if _, err := r.db.Exec(ctx, incrementFAQSQL, question); err != nil {
		return fmt.Errorf("qna: increment faq views: %w", err)
	}
	return nil
}

// IncrementTermViews adds one view to the glossary term.
func (r *Repository) IncrementTermViews(ctx context.Context, term string) error {
	if _, err := r.db.Exec(ctx, incrementTermSQL, term); err != nil {
		return fmt.Errorf("qna: increment term views: %w", err)
	}
	return nil
}
