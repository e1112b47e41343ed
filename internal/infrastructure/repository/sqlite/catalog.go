package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

// CatalogRepository reads the equities snapshot the resolver and the SQL
// prompt are built from. The snapshot is loaded once at startup.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CatalogRepository) Companies(ctx context.Context) ([]domain.CompanyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT isin, company_name, ticker
FROM equities
WHERE isin IS NOT NULL AND company_name IS NOT NULL
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCatalogUnavailable, "select companies", err)
	}
	defer rows.Close()

	var companies []domain.CompanyRecord
	for rows.Next() {
		var record domain.CompanyRecord
		var ticker sql.NullString
		if err := rows.Scan(&record.ISIN, &record.CompanyName, &ticker); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		record.Ticker = ticker.String
		companies = append(companies, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, nil
}

// Aliases returns the curated alias rows. A missing company_aliases table is
// not an error; the resolver then works from company names alone.
func (r *CatalogRepository) Aliases(ctx context.Context) ([]domain.AliasRow, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT alias_normalized, isin
FROM company_aliases
WHERE alias_normalized IS NOT NULL AND isin IS NOT NULL
`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrCatalogUnavailable, "select aliases", err)
	}
	defer rows.Close()

	var aliases []domain.AliasRow
	for rows.Next() {
		var row domain.AliasRow
		if err := rows.Scan(&row.AliasNormalized, &row.ISIN); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		aliases = append(aliases, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}
	return aliases, nil
}

// SchemaLines renders the equities columns for the text-to-SQL prompt.
func (r *CatalogRepository) SchemaLines(ctx context.Context) ([]string, error) {
	columns, err := tableColumns(ctx, r.db, "equities")
	if err != nil {
		return nil, domain.WrapError(domain.ErrCatalogUnavailable, "load schema", err)
	}
	lines := make([]string, 0, len(columns))
	for _, column := range columns {
		lines = append(lines, fmt.Sprintf("- %s (%s)", column.name, column.declaredType))
	}
	return lines, nil
}

type columnInfo struct {
	name         string
	declaredType string
}

// querier is satisfied by *sql.DB and *sql.Conn; the guardrail reloads the
// column list on its pinned connection.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func tableColumns(ctx context.Context, q querier, table string) ([]columnInfo, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("pragma table_info: %w", err)
	}
	defer rows.Close()

	var columns []columnInfo
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      sql.NullString
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info: %w", err)
		}
		declared := ctype.String
		if declared == "" {
			declared = "TEXT"
		}
		columns = append(columns, columnInfo{name: name, declaredType: declared})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info: %w", err)
	}
	return columns, nil
}
