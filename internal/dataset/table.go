package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// columnTypes maps columns to sqlite affinities; everything else is TEXT.
var columnTypes = map[string]string{
	"contract_sum":       "REAL",
	"paid_sum":           "REAL",
	"lot_amount":         "REAL",
	"plan_price":         "REAL",
	"price_z":            "REAL",
	"risk_score":         "REAL",
	"contract_method_id": "INTEGER",
	"lot_method_id":      "INTEGER",
	"plan_method_id":     "INTEGER",
	"price_flag":         "INTEGER",
	"single_flag":        "INTEGER",
	"repeat_flag":        "INTEGER",
	"split_flag":         "INTEGER",
	"underpaid_flag":     "INTEGER",
}

// WriteTable replaces the fact table at dbPath with the given rows in one
// transaction.
func WriteTable(ctx context.Context, dbPath string, facts []model.FactRecord) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open dataset db: %w", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin dataset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", TableName)); err != nil {
		return fmt.Errorf("failed to drop fact table: %w", err)
	}

	defs := make([]string, len(Columns))
	for i, col := range Columns {
		typ := columnTypes[col]
		if typ == "" {
			typ = "TEXT"
		}
		defs[i] = fmt.Sprintf("%s %s", col, typ)
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", TableName, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("failed to create fact table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(Columns)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName, strings.Join(Columns, ", "), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare fact insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range facts {
		if _, err := stmt.ExecContext(ctx, rowValues(&facts[i])...); err != nil {
			return fmt.Errorf("failed to insert fact row %s: %w", facts[i].Contract.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fact table: %w", err)
	}

	return nil
}

// ReadFacts loads the fact table back as generic rows, for the export and
// stats commands.
func ReadFacts(ctx context.Context, dbPath string) ([][]any, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset db: %w", err)
	}
	defer func() { _ = db.Close() }()

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY contract_id",
		strings.Join(Columns, ", "), TableName)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read fact table: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out [][]any
	for rows.Next() {
		values := make([]any, len(Columns))
		ptrs := make([]any, len(Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan fact row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fact rows: %w", err)
	}

	return out, nil
}

// CountFacts returns the fact-table row count.
func CountFacts(ctx context.Context, dbPath string) (int, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset db: %w", err)
	}
	defer func() { _ = db.Close() }()

	var count int
	err = db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", TableName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fact rows: %w", err)
	}
	return count, nil
}
