package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticExecutor() *GuardedExecutor {
	return &GuardedExecutor{
		previewLimit: 5,
		maxLimit:     50,
		log:          discardLogger(),
	}
}

func TestValidateStaticRejections(t *testing.T) {
	cases := []struct {
		name            string
		sql             string
		companySpecific bool
		isins           []string
		wantCode        string
	}{
		{name: "empty", sql: "   ", wantCode: domain.SQLErrEmpty},
		{name: "fence only", sql: "```sql\n```", wantCode: domain.SQLErrEmpty},
		{name: "multi statement", sql: "SELECT 1; SELECT 2", wantCode: domain.SQLErrMultiStatement},
		{name: "piggybacked drop", sql: "SELECT * FROM equities; DROP TABLE equities", wantCode: domain.SQLErrMultiStatement},
		{name: "not a select", sql: "UPDATE equities SET price = 0", wantCode: domain.SQLErrSelectOnly},
		{name: "with cte", sql: "WITH x AS (SELECT 1) SELECT * FROM x", wantCode: domain.SQLErrSelectOnly},
		{name: "forbidden function name", sql: "SELECT replace(company_name, 'a', 'b') FROM equities", wantCode: domain.SQLErrForbiddenKeyword},
		{name: "no table", sql: "SELECT 1", wantCode: domain.SQLErrTableRequired},
		{name: "other table", sql: "SELECT * FROM portfolio", wantCode: domain.SQLErrTableNotAllowed},
		{name: "join other table", sql: "SELECT e.price FROM equities e JOIN users u ON u.isin = e.isin", wantCode: domain.SQLErrTableNotAllowed},
		{
			name:            "company specific without isins",
			sql:             "SELECT price FROM equities",
			companySpecific: true,
			wantCode:        domain.SQLErrMissingEntityISIN,
		},
	}

	e := staticExecutor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := e.ValidateAndExecute(context.Background(), tc.sql, tc.companySpecific, tc.isins)
			if result.ErrorCode != tc.wantCode {
				t.Fatalf("error code = %q, want %q (%+v)", result.ErrorCode, tc.wantCode, result)
			}
			if len(result.RowsPreview) != 0 {
				t.Fatalf("rejected query must not return rows: %+v", result.RowsPreview)
			}
		})
	}
}

func TestTableNotAllowedMessageListsTables(t *testing.T) {
	e := staticExecutor()
	result := e.ValidateAndExecute(context.Background(),
		"SELECT * FROM portfolio p JOIN watchlist w ON w.isin = p.isin", false, nil)
	if result.ErrorCode != domain.SQLErrTableNotAllowed {
		t.Fatalf("unexpected code: %+v", result)
	}
	if result.ErrorMessage != "Only table 'equities' is allowed. Found: portfolio, watchlist" {
		t.Fatalf("unexpected message: %q", result.ErrorMessage)
	}
}

func TestReferencedTablesNormalization(t *testing.T) {
	tables := referencedTables("SELECT * FROM main.Equities JOIN [equities] e2 JOIN `EQUITIES` e3 ON 1=1")
	if len(tables) != 1 || tables[0] != "equities" {
		t.Fatalf("expected normalized single table, got %+v", tables)
	}
}

func TestQuotedSchemaQualifiedReferenceRejected(t *testing.T) {
	// Quoting around the schema prefix defeats the reference parser, so the
	// partial capture must fail safe as a disallowed table.
	e := staticExecutor()
	result := e.ValidateAndExecute(context.Background(),
		`SELECT * FROM "main"."Equities" JOIN [equities] e2 ON 1=1`, false, nil)
	if result.ErrorCode != domain.SQLErrTableNotAllowed {
		t.Fatalf("expected table rejection, got %+v", result)
	}
	if !strings.Contains(result.ErrorMessage, "main") {
		t.Fatalf("message should name the unparsed reference, got %q", result.ErrorMessage)
	}
}

func TestRejectionCarriesNormalizedSQL(t *testing.T) {
	e := staticExecutor()
	result := e.ValidateAndExecute(context.Background(),
		"```sql\nSELECT * FROM portfolio;\n```", false, nil)
	if result.ErrorCode != domain.SQLErrTableNotAllowed {
		t.Fatalf("unexpected code: %+v", result)
	}
	if result.SQL != "SELECT * FROM portfolio" {
		t.Fatalf("rejection must carry the normalized statement, got %q", result.SQL)
	}
}

func TestInjectISINFilter(t *testing.T) {
	cases := []struct {
		name  string
		sql   string
		isins []string
		want  string
	}{
		{
			name:  "plain select",
			sql:   "SELECT * FROM equities",
			isins: []string{"US0378331005"},
			want:  "SELECT * FROM equities WHERE isin IN ('US0378331005')",
		},
		{
			name:  "existing where before order by",
			sql:   "SELECT * FROM equities WHERE price > 10 ORDER BY price DESC",
			isins: []string{"US0378331005"},
			want:  "SELECT * FROM equities WHERE price > 10 AND isin IN ('US0378331005') ORDER BY price DESC",
		},
		{
			name:  "group by without where",
			sql:   "SELECT region, count(*) FROM equities GROUP BY region",
			isins: []string{"US0378331005", "US5949181045"},
			want:  "SELECT region, count(*) FROM equities WHERE isin IN ('US0378331005','US5949181045') GROUP BY region",
		},
		{
			name:  "quote escaped",
			sql:   "SELECT * FROM equities",
			isins: []string{"US'0001"},
			want:  "SELECT * FROM equities WHERE isin IN ('US''0001')",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := injectISINFilter(tc.sql, tc.isins)
			if got != tc.want {
				t.Fatalf("injectISINFilter:\n got: %q\nwant: %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeCandidateSQL(t *testing.T) {
	got := normalizeCandidateSQL("```sql\nSELECT price FROM equities;\n```")
	if got != "SELECT price FROM equities" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "equities.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE equities (
	isin TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	ticker TEXT,
	price REAL,
	dividend_yield REAL,
	region TEXT
)`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	_, err = db.Exec(`
INSERT INTO equities (isin, company_name, ticker, price, dividend_yield, region) VALUES
	('US0378331005', 'Apple Inc.', 'AAPL', 187.5, 0.5, 'North America'),
	('US5949181045', 'Microsoft Corporation', 'MSFT', 410.2, 0.8, 'North America'),
	('DE0007664039', 'Volkswagen AG', 'VOW.DE', 105.1, 7.2, 'Europe'),
	('FR0000121014', 'LVMH SE', 'MC.PA', 610.0, 1.8, 'Europe'),
	('GB0005405286', 'HSBC Holdings plc', 'HSBA.L', 6.6, 7.0, 'Europe'),
	('JP3633400001', 'Toyota Motor Corporation', '7203.T', 2800.0, 2.9, 'Asia'),
	('US67066G1040', 'NVIDIA Corporation', 'NVDA', 118.0, 0.0, 'North America')
`)
	if err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	return db
}

func newLiveExecutor(t *testing.T, db *sql.DB, previewLimit int) *GuardedExecutor {
	t.Helper()
	e, err := NewGuardedExecutor(context.Background(), db, previewLimit, 50, discardLogger())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	return e
}

func TestExecuteCompanySpecificFiltersAndCaps(t *testing.T) {
	db := openTestDB(t)
	e := newLiveExecutor(t, db, 5)

	result := e.ValidateAndExecute(context.Background(),
		"```sql\nSELECT company_name, price FROM equities ORDER BY price DESC\n```",
		true, []string{" us0378331005 ", "US5949181045", "US0378331005"})
	if !result.OK() {
		t.Fatalf("execution failed: %+v", result)
	}
	if !strings.Contains(result.SQL, "WHERE isin IN ('US0378331005','US5949181045')") {
		t.Fatalf("missing injected filter: %q", result.SQL)
	}
	if !strings.HasSuffix(result.SQL, "LIMIT 50") {
		t.Fatalf("missing appended limit: %q", result.SQL)
	}
	if len(result.RowsPreview) != 2 {
		t.Fatalf("expected 2 filtered rows, got %+v", result.RowsPreview)
	}
	if result.RowsPreview[0]["company_name"] != "Microsoft Corporation" {
		t.Fatalf("expected price ordering, got %+v", result.RowsPreview[0])
	}
}

func TestExecutePreviewLimitIndependentOfSQLLimit(t *testing.T) {
	db := openTestDB(t)
	e := newLiveExecutor(t, db, 2)

	result := e.ValidateAndExecute(context.Background(),
		"SELECT isin FROM equities ORDER BY isin", false, nil)
	if !result.OK() {
		t.Fatalf("execution failed: %+v", result)
	}
	if len(result.RowsPreview) != 2 {
		t.Fatalf("preview must cap at 2 rows, got %d", len(result.RowsPreview))
	}
}

func TestExecuteKeepsExplicitLimit(t *testing.T) {
	db := openTestDB(t)
	e := newLiveExecutor(t, db, 5)

	result := e.ValidateAndExecute(context.Background(),
		"SELECT isin FROM equities LIMIT 3", false, nil)
	if !result.OK() {
		t.Fatalf("execution failed: %+v", result)
	}
	if result.SQL != "SELECT isin FROM equities LIMIT 3" {
		t.Fatalf("explicit limit must be kept: %q", result.SQL)
	}
	if len(result.RowsPreview) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(result.RowsPreview))
	}
}

func TestExecuteSyntaxErrorIsExecutionFailure(t *testing.T) {
	db := openTestDB(t)
	e := newLiveExecutor(t, db, 5)

	result := e.ValidateAndExecute(context.Background(),
		"SELECT price FROM equities WHERE (price >", false, nil)
	if result.ErrorCode != domain.SQLErrExecutionFailed {
		t.Fatalf("expected execution failure, got %+v", result)
	}
	if len(result.RowsPreview) != 0 {
		t.Fatalf("failed execution must not return rows: %+v", result.RowsPreview)
	}
}

func TestAllowListReloadedPerExecution(t *testing.T) {
	db := openTestDB(t)
	e := newLiveExecutor(t, db, 5)

	// Columns added after construction must be readable on the next execution.
	if _, err := db.Exec("ALTER TABLE equities ADD COLUMN internal_note TEXT"); err != nil {
		t.Fatalf("alter table: %v", err)
	}

	result := e.ValidateAndExecute(context.Background(),
		"SELECT internal_note FROM equities LIMIT 1", false, nil)
	if !result.OK() {
		t.Fatalf("new column must be on the live allow-list, got %+v", result)
	}
}

func TestAuthorizeDeniesWritesAndUnknownReads(t *testing.T) {
	allowed := map[string]struct{}{"isin": {}, "price": {}, "rowid": {}}

	cases := []struct {
		name   string
		op     int
		table  string
		column string
		want   int
	}{
		{name: "allowed column read", op: sqlite3.SQLITE_READ, table: "Equities", column: "PRICE", want: authOK},
		{name: "table level read", op: sqlite3.SQLITE_READ, table: "equities", want: authOK},
		{name: "unknown column read", op: sqlite3.SQLITE_READ, table: "equities", column: "internal_note", want: sqlite3.SQLITE_DENY},
		{name: "other table read", op: sqlite3.SQLITE_READ, table: "portfolio", column: "isin", want: sqlite3.SQLITE_DENY},
		{name: "update", op: sqlite3.SQLITE_UPDATE, table: "equities", column: "price", want: sqlite3.SQLITE_DENY},
		{name: "pragma", op: sqlite3.SQLITE_PRAGMA, want: sqlite3.SQLITE_DENY},
		{name: "function call", op: sqlite3.SQLITE_FUNCTION, want: authOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := authorize(tc.op, tc.table, tc.column, allowed); got != tc.want {
				t.Fatalf("authorize = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAuthorizerClearedBetweenExecutions(t *testing.T) {
	db := openTestDB(t)
	e := newLiveExecutor(t, db, 5)

	result := e.ValidateAndExecute(context.Background(),
		"SELECT isin FROM equities LIMIT 1", false, nil)
	if !result.OK() {
		t.Fatalf("first execution failed: %+v", result)
	}

	// Ordinary writes through the shared pool must still work afterwards.
	if _, err := db.Exec("UPDATE equities SET price = price"); err != nil {
		t.Fatalf("pool connection still restricted: %v", err)
	}
}
