package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Schema creates the kv_store table the MySQL backend uses.  Values are
// JSON documents, so LONGBLOB keeps the driver out of charset handling.
const Schema = `CREATE TABLE IF NOT EXISTS kv_store (
    k          VARCHAR(255) NOT NULL PRIMARY KEY,
    v          LONGBLOB     NOT NULL,
    version    BIGINT       NOT NULL DEFAULT 1,
    updated_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQL is a Store over a single kv_store table.  Optimistic writes are
// conditional UPDATEs on the version column.
type MySQL struct {
	db *sql.DB
}

// NewMySQL wraps an open database handle.  Call EnsureSchema once at
// startup.
func NewMySQL(db *sql.DB) *MySQL { return &MySQL{db: db} }

// EnsureSchema creates the kv_store table when missing.
func (s *MySQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create kv_store: %w", err)
	}
	return nil
}

func (s *MySQL) Get(ctx context.Context, key string) (Entry, error) {
	e := Entry{Key: key}
	err := s.db.QueryRowContext(ctx, `SELECT v, version FROM kv_store WHERE k = ?`, key).Scan(&e.Value, &e.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("mysql get %s: %w", key, err)
	}
	return e, nil
}

func (s *MySQL) Set(ctx context.Context, key string, value []byte) error {
	const q = `INSERT INTO kv_store (k, v, version) VALUES (?, ?, 1)
               ON DUPLICATE KEY UPDATE v = VALUES(v), version = version + 1`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("mysql set %s: %w", key, err)
	}
	return nil
}

func (s *MySQL) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	q := `SELECT k, v FROM kv_store WHERE k IN (` + placeholders(len(keys)) + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql mget: %w", err)
	}
	defer rows.Close()
	found := make(map[string][]byte, len(keys))
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		found[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

func (s *MySQL) MDel(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE k IN (`+placeholders(len(keys))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("mysql mdel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *MySQL) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT k, v, version FROM kv_store WHERE k LIKE ? ESCAPE '\\' ORDER BY k`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("mysql scan %s: %w", prefix, err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Version); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *MySQL) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	if expected == 0 {
		_, err := s.db.ExecContext(ctx, `INSERT INTO kv_store (k, v, version) VALUES (?, ?, 1)`, key, value)
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 { // duplicate entry
			return 0, ErrVersionConflict
		}
		if err != nil {
			return 0, fmt.Errorf("mysql cas insert %s: %w", key, err)
		}
		return 1, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE kv_store SET v = ?, version = version + 1 WHERE k = ? AND version = ?`,
		value, key, expected,
	)
	if err != nil {
		return 0, fmt.Errorf("mysql cas update %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return expected + 1, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// escapeLike quotes LIKE wildcards so a prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
