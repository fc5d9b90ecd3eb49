package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"

	"github.com/zombar/analyzer/models"
)

// DB wraps the database connection and provides data access methods
type DB struct {
	conn   *sql.DB
	driver string
}

// Config contains database configuration
type Config struct {
	Driver string // "postgres" (default) or "sqlite"
	DSN    string
}

// Filter narrows List results
type Filter struct {
	SourceType models.SourceType
	Limit      int
	Offset     int
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "postgres"
	}
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	conn, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	if driver == "sqlite" {
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent inserts.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{conn: conn, driver: driver}

	if err := Migrate(conn, driver); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Ping verifies the connection is still alive
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// rebind converts $N placeholders to ? for the sqlite driver
func (db *DB) rebind(query string) string {
	if db.driver != "sqlite" {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] != '$' {
			b.WriteByte(query[i])
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(query[i])
			continue
		}
		b.WriteByte('?')
		i = j - 1
	}
	return b.String()
}

// Insert saves an analysis record. Records are immutable: there is no
// corresponding update path and duplicate ids are rejected by the
// primary key.
func (db *DB) Insert(ctx context.Context, record *models.AnalysisRecord) error {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := db.rebind(`
		INSERT INTO analyses (id, created_at, source_type, raw_input_hash, url, filename, extracted_text, mode, model_version, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)

	_, err = db.conn.ExecContext(
		ctx,
		query,
		record.ID,
		record.CreatedAt,
		string(record.SourceType),
		record.RawInputHash,
		record.URL,
		record.Filename,
		record.ExtractedText,
		string(record.Mode),
		record.ModelVersion,
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// GetByID retrieves an analysis record by ID. Returns nil without error
// when no record exists.
func (db *DB) GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	query := db.rebind(`
		SELECT id, created_at, source_type, raw_input_hash, url, filename, extracted_text, mode, model_version, result
		FROM analyses
		WHERE id = $1
	`)

	record, err := scanRecord(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}

	return record, nil
}

// List returns analysis records ordered newest first, plus the total
// count matching the filter before pagination.
func (db *DB) List(ctx context.Context, filter Filter) ([]*models.AnalysisRecord, int, error) {
	var conditions []string
	var args []interface{}

	if filter.SourceType != "" {
		args = append(args, string(filter.SourceType))
		conditions = append(conditions, "source_type = $"+strconv.Itoa(len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := db.rebind("SELECT COUNT(*) FROM analyses" + where)
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	args = append(args, filter.Limit)
	limitPos := len(args)
	args = append(args, filter.Offset)
	offsetPos := len(args)

	query := db.rebind(fmt.Sprintf(`
		SELECT id, created_at, source_type, raw_input_hash, url, filename, extracted_text, mode, model_version, result
		FROM analyses%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, limitPos, offsetPos))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var results []*models.AnalysisRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, total, nil
}

// Count returns the total number of stored analyses
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*models.AnalysisRecord, error) {
	var record models.AnalysisRecord
	var sourceType, mode, resultJSON string

	err := row.Scan(
		&record.ID,
		&record.CreatedAt,
		&sourceType,
		&record.RawInputHash,
		&record.URL,
		&record.Filename,
		&record.ExtractedText,
		&mode,
		&record.ModelVersion,
		&resultJSON,
	)
	if err != nil {
		return nil, err
	}

	record.SourceType = models.SourceType(sourceType)
	record.Mode = models.AnalysisMode(mode)
	if err := json.Unmarshal([]byte(resultJSON), &record.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	record.CreatedAt = record.CreatedAt.UTC()

	return &record, nil
}
