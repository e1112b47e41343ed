package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

func newCatalogWithMock(t *testing.T) (*CatalogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &CatalogRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCompaniesScansNullableTicker(t *testing.T) {
	repo, mock, done := newCatalogWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"isin", "company_name", "ticker"}).
		AddRow("US0378331005", "Apple Inc.", "AAPL").
		AddRow("US5949181045", "Microsoft Corporation", nil)
	mock.ExpectQuery("SELECT isin, company_name, ticker").WillReturnRows(rows)

	companies, err := repo.Companies(context.Background())
	if err != nil {
		t.Fatalf("Companies() error = %v", err)
	}
	if len(companies) != 2 {
		t.Fatalf("expected 2 companies, got %+v", companies)
	}
	if companies[1].Ticker != "" {
		t.Fatalf("NULL ticker should scan to empty string, got %q", companies[1].Ticker)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompaniesWrapsCatalogUnavailable(t *testing.T) {
	repo, mock, done := newCatalogWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT isin, company_name, ticker").
		WillReturnError(errors.New("database is locked"))

	_, err := repo.Companies(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAliasesMissingTableIsEmpty(t *testing.T) {
	repo, mock, done := newCatalogWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT alias_normalized, isin").
		WillReturnError(errors.New("no such table: company_aliases"))

	aliases, err := repo.Aliases(context.Background())
	if err != nil {
		t.Fatalf("missing alias table must not fail: %v", err)
	}
	if len(aliases) != 0 {
		t.Fatalf("expected no aliases, got %+v", aliases)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSchemaLines(t *testing.T) {
	repo, mock, done := newCatalogWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
		AddRow(0, "isin", "TEXT", 1, nil, 1).
		AddRow(1, "price", "REAL", 0, nil, 0).
		AddRow(2, "notes", nil, 0, nil, 0)
	mock.ExpectQuery("PRAGMA table_info").WillReturnRows(rows)

	lines, err := repo.SchemaLines(context.Background())
	if err != nil {
		t.Fatalf("SchemaLines() error = %v", err)
	}
	want := []string{"- isin (TEXT)", "- price (REAL)", "- notes (TEXT)"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %+v", len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
