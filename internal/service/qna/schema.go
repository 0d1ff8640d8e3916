package qna

import (
	"context"
	"fmt"
)

const (
	createFAQsSQL = `CREATE TABLE IF NOT EXISTS faqs (
    faq_id   BIGSERIAL PRIMARY KEY,
    question TEXT NOT NULL UNIQUE,
    answer   TEXT NOT NULL,
    views    BIGINT NOT NULL DEFAULT 0
)`

	createTermsSQL = `CREATE TABLE IF NOT EXISTS terms (
    term_id    BIGSERIAL PRIMARY KEY,
    term       TEXT NOT NULL UNIQUE,
    definition TEXT NOT NULL,
    views      BIGINT NOT NULL DEFAULT 0
)`
)

// EnsureSchema creates the faqs and terms tables if they do not exist. The
// QnA database is normally owned by the content team; this exists for local
// development and the integration tests.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createFAQsSQL); err != nil {
		return fmt.Errorf("qna: create faqs: %w", err)
	}
	if _, err := r.db.Exec(ctx, createTermsSQL); err != nil {
		return fmt.Errorf("qna: create terms: %w", err)
	}
	return nil
}
