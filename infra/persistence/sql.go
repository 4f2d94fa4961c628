package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/strategy"
)

// DefaultKeep is the number of model revisions a SQL store retains.
const DefaultKeep = 10

// SQLPersister stores plant model revisions as JSON documents. The newest
// revision is the one loaded.
type SQLPersister struct {
	db      *sql.DB
	dialect Dialect
	keep    int
	now     func() time.Time
}

var _ strategy.ModelPersister = (*SQLPersister)(nil)

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(path string, keep int) (*SQLPersister, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite persister: path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLPersister(db, sqliteDialect{}, keep)
}

// OpenPostgres connects through the pgx driver.
func OpenPostgres(dsn string, keep int) (*SQLPersister, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLPersister(db, postgresDialect{}, keep)
}

func (c postgresConf) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}

func newSQLPersister(db *sql.DB, d Dialect, keep int) (*SQLPersister, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}
	p := &SQLPersister{db: db, dialect: d, keep: keep, now: time.Now}
	if err := p.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.Driver(), err)
	}
	return p, nil
}

func (p *SQLPersister) migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plant_models (
        id %s,
        name TEXT NOT NULL,
        saved_at BIGINT NOT NULL,
        body %s NOT NULL
    )`, p.dialect.AutoIncrementPK(), p.dialect.JSONType())
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *SQLPersister) q(query string) string { return p.dialect.Rebind(query) }

// SaveModel appends a revision and prunes the ones beyond the retention.
func (p *SQLPersister) SaveModel(ctx context.Context, m model.PlantModel) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode plant model: %w", err)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, p.q(`INSERT INTO plant_models (name, saved_at, body) VALUES (?, ?, ?)`),
		m.Name, p.now().UnixNano(), string(body)); err != nil {
		return fmt.Errorf("insert plant model: %w", err)
	}
	if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM plant_models WHERE id NOT IN (
        SELECT id FROM plant_models ORDER BY id DESC LIMIT ?)`), p.keep); err != nil {
		return fmt.Errorf("prune plant models: %w", err)
	}
	return tx.Commit()
}

// LoadModel returns the newest revision.
func (p *SQLPersister) LoadModel(ctx context.Context) (model.PlantModel, error) {
	var body string
	err := p.db.QueryRowContext(ctx, `SELECT body FROM plant_models ORDER BY id DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlantModel{}, errNoModel()
	}
	if err != nil {
		return model.PlantModel{}, err
	}
	var m model.PlantModel
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return model.PlantModel{}, fmt.Errorf("decode plant model: %w", err)
	}
	return m, nil
}

func (p *SQLPersister) HasModel(ctx context.Context) (bool, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plant_models`).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revision describes one stored model.
type Revision struct {
	ID      int64
	Name    string
	SavedAt time.Time
}

// Revisions lists the stored revisions, newest first.
func (p *SQLPersister) Revisions(ctx context.Context) ([]Revision, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, saved_at FROM plant_models ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var r Revision
		var ts int64
		if err := rows.Scan(&r.ID, &r.Name, &ts); err != nil {
			return nil, err
		}
		r.SavedAt = time.Unix(0, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (p *SQLPersister) Close() error { return p.db.Close() }
