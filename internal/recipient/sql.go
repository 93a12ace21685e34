package recipient

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads recipients from a table with the columns id, address and
// status, ordered by id. The header row is synthesized at index 0 so rows
// keep the same positions as the spreadsheet export.
type SQLSource struct {
	db    *sql.DB
	table string
}

func OpenSQLSource(driver string, dsn string, table string) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	source, err := NewSQLSource(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return source, nil
}

func NewSQLSource(db *sql.DB, table string) (*SQLSource, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid recipients table name %q", table)
	}
	return &SQLSource{db: db, table: table}, nil
}

func (s *SQLSource) Rows(ctx context.Context) ([]Row, error) {
	query := fmt.Sprintf("SELECT id, address, status FROM %s ORDER BY id ASC", s.table)

	result, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer result.Close()

	rows := []Row{{Index: 0, Address: "address", Status: "status"}}
	for result.Next() {
		var (
			id      int64
			address sql.NullString
			status  sql.NullString
		)
		if err := result.Scan(&id, &address, &status); err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			Index:   len(rows),
			ID:      id,
			Address: address.String,
			Status:  status.String,
		})
	}
	return rows, result.Err()
}

func (s *SQLSource) MarkSent(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)+1)
	args = append(args, SentStatus)
	for _, row := range rows {
		placeholders = append(placeholders, "?")
		args = append(args, row.ID)
	}

	query := fmt.Sprintf("UPDATE %s SET status = ? WHERE id IN (%s)", s.table, strings.Join(placeholders, ","))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to mark recipients as sent: %w", err)
	}
	return tx.Commit()
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}
