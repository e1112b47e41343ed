package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/finsightlab/equity-copilot/internal/core/domain"
)

const allowedTable = "equities"

// mattn does not re-export SQLITE_OK for authorizer callbacks.
const authOK = 0

var (
	fenceOpenPattern  = regexp.MustCompile("^```[a-zA-Z0-9_+-]*\\s*")
	fenceClosePattern = regexp.MustCompile("\\s*```$")

	selectPattern = regexp.MustCompile(`(?i)^\s*select\b`)

	forbiddenKeywordPattern = regexp.MustCompile(
		`(?i)\b(insert|update|delete|alter|drop|create|attach|detach|pragma|vacuum|replace|truncate)\b`,
	)

	tableRefPattern = regexp.MustCompile(
		"(?i)\\b(?:from|join)\\s+([`\"\\[]?[a-zA-Z_][\\w$]*(?:\\.[a-zA-Z_][\\w$]*)?[`\"\\]]?)",
	)

	clauseBoundaryPattern = regexp.MustCompile(`(?i)\b(group\s+by|order\s+by|limit|offset)\b`)
	wherePattern          = regexp.MustCompile(`(?i)\bwhere\b`)
	limitClausePattern    = regexp.MustCompile(`(?i)\blimit\s+\d+\b`)
)

// GuardedExecutor validates untrusted SELECT statements and executes them on
// a dedicated connection with an engine-level authorizer installed, so even a
// statement that slips past the static checks cannot write or read outside
// the allowed table and columns.
type GuardedExecutor struct {
	db           *sql.DB
	previewLimit int
	maxLimit     int
	log          *slog.Logger
}

// NewGuardedExecutor verifies the allowed table is present and readable. The
// column allow-list itself is reloaded on every execution so schema changes
// take effect without a restart.
func NewGuardedExecutor(ctx context.Context, db *sql.DB, previewLimit, maxLimit int, log *slog.Logger) (*GuardedExecutor, error) {
	if previewLimit <= 0 {
		previewLimit = 5
	}
	if maxLimit <= 0 {
		maxLimit = 50
	}

	columnRows, err := tableColumns(ctx, db, allowedTable)
	if err != nil {
		return nil, fmt.Errorf("load column allow-list: %w", err)
	}
	if len(columnRows) == 0 {
		return nil, fmt.Errorf("table %q has no columns", allowedTable)
	}

	return &GuardedExecutor{
		db:           db,
		previewLimit: previewLimit,
		maxLimit:     maxLimit,
		log:          log,
	}, nil
}

func (e *GuardedExecutor) ValidateAndExecute(ctx context.Context, candidateSQL string, companySpecific bool, entityISINs []string) domain.SQLExecutionResult {
	query := normalizeCandidateSQL(candidateSQL)
	if query == "" {
		return failure(query, domain.SQLErrEmpty, "Generated SQL is empty.")
	}
	if strings.Contains(query, ";") {
		return failure(query, domain.SQLErrMultiStatement, "Multiple SQL statements are not allowed.")
	}
	if !selectPattern.MatchString(query) {
		return failure(query, domain.SQLErrSelectOnly, "Only SELECT statements are allowed.")
	}
	if match := forbiddenKeywordPattern.FindString(query); match != "" {
		return failure(query, domain.SQLErrForbiddenKeyword,
			fmt.Sprintf("Forbidden SQL keyword: %s.", strings.ToLower(match)))
	}

	tables := referencedTables(query)
	if len(tables) == 0 {
		return failure(query, domain.SQLErrTableRequired, "Query must reference the equities table.")
	}
	if disallowed := disallowedTables(tables); len(disallowed) > 0 {
		return failure(query, domain.SQLErrTableNotAllowed,
			fmt.Sprintf("Only table 'equities' is allowed. Found: %s", strings.Join(disallowed, ", ")))
	}

	if companySpecific {
		isins := cleanISINs(entityISINs)
		if len(isins) == 0 {
			return failure(query, domain.SQLErrMissingEntityISIN,
				"Company-specific query requires at least one resolved entity ISIN.")
		}
		injected := injectISINFilter(query, isins)
		if injected == "" {
			return failure(query, domain.SQLErrISINFilterFailed, "Failed to inject the entity ISIN filter.")
		}
		query = injected
	}

	if !limitClausePattern.MatchString(query) {
		query = fmt.Sprintf("%s LIMIT %d", query, e.maxLimit)
	}

	rows, err := e.executeGuarded(ctx, query)
	if err != nil {
		e.log.Warn("guarded sql execution failed", "error", err)
		return failure(query, domain.SQLErrExecutionFailed, fmt.Sprintf("SQL execution failed: %v", err))
	}

	return domain.SQLExecutionResult{SQL: query, RowsPreview: rows}
}

// executeGuarded pins one pooled connection, reloads the column allow-list,
// installs the authorizer, runs an EXPLAIN QUERY PLAN pass and then the query
// itself. The allow-list must be read before the authorizer is installed
// because the authorizer denies PRAGMA. The authorizer is cleared before the
// connection goes back to the pool.
func (e *GuardedExecutor) executeGuarded(ctx context.Context, query string) ([]map[string]any, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	columnRows, err := tableColumns(ctx, conn, allowedTable)
	if err != nil {
		return nil, fmt.Errorf("load column allow-list: %w", err)
	}
	allowed := make(map[string]struct{}, len(columnRows)+1)
	for _, column := range columnRows {
		allowed[strings.ToLower(column.name)] = struct{}{}
	}
	allowed["rowid"] = struct{}{}

	err = e.setAuthorizer(conn, func(op int, arg1, arg2, _ string) int {
		return authorize(op, arg1, arg2, allowed)
	})
	if err != nil {
		return nil, fmt.Errorf("install authorizer: %w", err)
	}
	defer func() {
		_ = e.setAuthorizer(conn, nil)
	}()

	planRows, err := conn.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query)
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	planRows.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	preview := make([]map[string]any, 0, e.previewLimit)
	for len(preview) < e.previewLimit && rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				record[column] = string(raw)
				continue
			}
			record[column] = values[i]
		}
		preview = append(preview, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return preview, nil
}

func (e *GuardedExecutor) setAuthorizer(conn *sql.Conn, callback func(int, string, string, string) int) error {
	return conn.Raw(func(driverConn any) error {
		sqliteConn, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		sqliteConn.RegisterAuthorizer(callback)
		return nil
	})
}

// authorize denies every write and schema action outright and restricts reads
// to the allowed table's columns.
func authorize(op int, table, column string, allowedColumns map[string]struct{}) int {
	switch op {
	case sqlite3.SQLITE_INSERT, sqlite3.SQLITE_UPDATE, sqlite3.SQLITE_DELETE,
		sqlite3.SQLITE_PRAGMA, sqlite3.SQLITE_ATTACH, sqlite3.SQLITE_DETACH,
		sqlite3.SQLITE_ALTER_TABLE, sqlite3.SQLITE_CREATE_TABLE, sqlite3.SQLITE_DROP_TABLE:
		return sqlite3.SQLITE_DENY
	case sqlite3.SQLITE_READ:
		if strings.ToLower(table) != allowedTable {
			return sqlite3.SQLITE_DENY
		}
		if column == "" {
			return authOK
		}
		if _, ok := allowedColumns[strings.ToLower(column)]; !ok {
			return sqlite3.SQLITE_DENY
		}
		return authOK
	default:
		return authOK
	}
}

// normalizeCandidateSQL strips markdown fences and a trailing semicolon from
// raw model output.
func normalizeCandidateSQL(candidate string) string {
	s := strings.TrimSpace(candidate)
	s = fenceOpenPattern.ReplaceAllString(s, "")
	s = fenceClosePattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ";")
	return strings.TrimSpace(s)
}

// referencedTables extracts normalized FROM/JOIN table names: quoting
// stripped, schema prefix dropped, lowercased.
func referencedTables(query string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(query, -1)
	seen := map[string]struct{}{}
	var tables []string
	for _, match := range matches {
		name := strings.Trim(match[1], "`\"[]")
		if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
			name = name[dot+1:]
		}
		name = strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

func disallowedTables(tables []string) []string {
	var disallowed []string
	for _, table := range tables {
		if table != allowedTable {
			disallowed = append(disallowed, table)
		}
	}
	sort.Strings(disallowed)
	return disallowed
}

func cleanISINs(entityISINs []string) []string {
	seen := map[string]struct{}{}
	var isins []string
	for _, isin := range entityISINs {
		cleaned := strings.ToUpper(strings.TrimSpace(isin))
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		isins = append(isins, cleaned)
	}
	sort.Strings(isins)
	return isins
}

// injectISINFilter rewrites the query so it can only return rows for the
// resolved entities. The condition lands before the earliest trailing clause
// (GROUP BY, ORDER BY, LIMIT, OFFSET), extending an existing WHERE if one
// precedes it.
func injectISINFilter(query string, isins []string) string {
	if len(isins) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(isins))
	for _, isin := range isins {
		quoted = append(quoted, "'"+strings.ReplaceAll(isin, "'", "''")+"'")
	}
	condition := fmt.Sprintf("isin IN (%s)", strings.Join(quoted, ","))

	boundary := len(query)
	if loc := clauseBoundaryPattern.FindStringIndex(query); loc != nil {
		boundary = loc[0]
	}
	head := strings.TrimRight(query[:boundary], " ")
	tail := strings.TrimLeft(query[boundary:], " ")

	var rewritten string
	if wherePattern.MatchString(head) {
		rewritten = head + " AND " + condition
	} else {
		rewritten = head + " WHERE " + condition
	}
	if tail != "" {
		rewritten += " " + tail
	}
	return rewritten
}

// failure carries the normalized statement alongside the error so callers can
// surface what was actually rejected.
func failure(query, code, message string) domain.SQLExecutionResult {
	return domain.SQLExecutionResult{SQL: query, ErrorCode: code, ErrorMessage: message}
}
