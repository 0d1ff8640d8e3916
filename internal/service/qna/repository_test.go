package qna

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestRepositoryTopFAQs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	rows := mock.NewRows([]string{"faq_id", "question", "answer", "views"}).
		AddRow(int64(7), "How do I reset my PIN?", "Open Settings.", int64(42)).
		AddRow(int64(3), "Is there a monthly fee?", "No.", int64(11))
	mock.ExpectQuery("SELECT faq_id, question, answer, views").
		WithArgs(3).
		WillReturnRows(rows)

	items, err := NewRepository(mock).TopFAQs(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopFAQs err: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 faqs, got %d", len(items))
	}
	if items[0].ID != 7 || items[0].Views != 42 || items[1].Question != "Is there a monthly fee?" {
		t.Fatalf("unexpected rows: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryTopTerms(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	rows := mock.NewRows([]string{"term_id", "term", "definition", "views"}).
		AddRow(int64(1), "APR", "Annual percentage rate.", int64(5))
	mock.ExpectQuery("SELECT term_id, term, definition, views").
		WithArgs(6).
		WillReturnRows(rows)

	items, err := NewRepository(mock).TopTerms(context.Background(), 6)
	if err != nil {
		t.Fatalf("TopTerms err: %v", err)
	}
	if len(items) != 1 || items[0].Definition != "Annual percentage rate." {
		t.Fatalf("unexpected rows: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	boom := errors.New("relation \"faqs\" does not exist")
	mock.ExpectQuery("SELECT faq_id").WithArgs(3).WillReturnError(boom)

	if _, err := NewRepository(mock).TopFAQs(context.Background(), 3); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}

func TestRepositoryIncrementViews(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE faqs SET views = views \\+ 1").
		WithArgs("How do I reset my PIN?").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE terms SET views = views \\+ 1").
		WithArgs("APR").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	ctx := context.Background()
	if err := repo.IncrementFAQViews(ctx, "How do I reset my PIN?"); err != nil {
		t.Fatalf("IncrementFAQViews err: %v", err)
	}
	if err := repo.IncrementTermViews(ctx, "APR"); err != nil {
		t.Fatalf("IncrementTermViews err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS faqs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS terms").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := NewRepository(mock).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
