// Package archive persists removed accounts and sweep run summaries to
// Postgres. Accounts are stored with their full attribute snapshot so they
// can be rebuilt by hand if a removal turns out to be wrong.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"f0oster/adsweep/lifecycle"
)

type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool against dsn and verifies the server is reachable.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create archive pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping archive store")
	}

	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping probes the store. Callers use it as a precondition before destructive
// work: no removal may start while the archive is unreachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping archive store")
	}
	return nil
}

// InitSchema creates the archive tables when they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	createTablesSQL := `
	CREATE TABLE IF NOT EXISTS sweep_runs (
		run_id UUID PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		dry_run BOOLEAN NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		examined INT NOT NULL,
		disabled INT NOT NULL,
		removed INT NOT NULL,
		failed INT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS archived_accounts (
		archive_id UUID PRIMARY KEY,
		run_id UUID REFERENCES sweep_runs(run_id),
		kind VARCHAR(16) NOT NULL,
		name VARCHAR(255) NOT NULL,
		dn VARCHAR(1024) NOT NULL,
		attributes_snapshot JSONB NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_archived_accounts_name ON archived_accounts (name);
	CREATE INDEX IF NOT EXISTS idx_archived_accounts_archived_at ON archived_accounts (archived_at);
	`

	if _, err := s.pool.Exec(ctx, createTablesSQL); err != nil {
		return errors.Wrap(err, "create archive tables")
	}

	s.logger.Info("archive schema ready")
	return nil
}

func (s *Store) rollbackOrCommit(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Error("transaction rollback failed",
				zap.Error(rbErr),
				zap.NamedError("cause", *err),
			)
		}
		return
	}
	if cmErr := tx.Commit(ctx); cmErr != nil {
		*err = errors.Wrap(cmErr, "commit")
	}
}

// ArchiveAccount stores the account's attribute snapshot. The run row is
// written later, after the sweep finishes, so run_id is left null until then.
func (s *Store) ArchiveAccount(ctx context.Context, runID uuid.UUID, res lifecycle.Result) error {
	snapshotJSON, err := attributesJSON(res.RawAttributes)
	if err != nil {
		return errors.Wrapf(err, "marshal snapshot for %s", res.DN)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO archived_accounts (archive_id, run_id, kind, name, dn, attributes_snapshot, archived_at)
		VALUES ($1, NULL, $2, $3, $4, $5, $6)
	`, uuid.New(), res.Kind.String(), res.Name, res.DN, snapshotJSON, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "archive %s", res.DN)
	}

	s.logger.Info("archived account",
		zap.String("name", res.Name),
		zap.String("dn", res.DN),
		zap.String("run_id", runID.String()),
	)
	return nil
}

// Run is the persisted summary of one sweep.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Examined   int       `json:"examined"`
	Disabled   int       `json:"disabled"`
	Removed    int       `json:"removed"`
	Failed     int       `json:"failed"`
}

// RecordRun writes the run summary and claims this run's unattributed
// archive rows, in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer s.rollbackOrCommit(ctx, tx, &err)

	_, err = tx.Exec(ctx, `
		INSERT INTO sweep_runs (run_id, kind, dry_run, started_at, finished_at, examined, disabled, removed, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, run.ID, run.Kind, run.DryRun, run.StartedAt, run.FinishedAt, run.Examined, run.Disabled, run.Removed, run.Failed)
	if err != nil {
		return errors.Wrap(err, "insert run")
	}

	_, err = tx.Exec(ctx, `
		UPDATE archived_accounts SET run_id = $1
		WHERE run_id IS NULL AND archived_at >= $2
	`, run.ID, run.StartedAt)
	if err != nil {
		return errors.Wrap(err, "attribute archives to run")
	}

	return nil
}

// ArchivedAccount is a stored account as read back from the archive.
type ArchivedAccount struct {
	ID         uuid.UUID           `json:"id"`
	RunID      *uuid.UUID          `json:"run_id,omitempty"`
	Kind       string              `json:"kind"`
	Name       string              `json:"name"`
	DN         string              `json:"dn"`
	Attributes map[string][]string `json:"attributes"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// RecentRuns returns the latest run summaries, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, kind, dry_run, started_at, finished_at, examined, disabled, removed, failed
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Kind, &run.DryRun, &run.StartedAt, &run.FinishedAt,
			&run.Examined, &run.Disabled, &run.Removed, &run.Failed); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RecentArchives returns the latest archived accounts, newest first.
func (s *Store) RecentArchives(ctx context.Context, limit int) ([]ArchivedAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT archive_id, run_id, kind, name, dn, attributes_snapshot, archived_at
		FROM archived_accounts
		ORDER BY archived_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query archives")
	}
	defer rows.Close()

	var accounts []ArchivedAccount
	for rows.Next() {
		var (
			acct         ArchivedAccount
			snapshotJSON []byte
		)
		if err := rows.Scan(&acct.ID, &acct.RunID, &acct.Kind, &acct.Name, &acct.DN,
			&snapshotJSON, &acct.ArchivedAt); err != nil {
			return nil, errors.Wrap(err, "scan archive")
		}
		if err := json.Unmarshal(snapshotJSON, &acct.Attributes); err != nil {
			return nil, errors.Wrapf(err, "unmarshal snapshot for %s", acct.DN)
		}
		accounts = append(accounts, acct)
	}

	return accounts, rows.Err()
}

// PruneExpired deletes archive rows and run summaries older than keepDays.
// A zero or negative retention keeps everything.
func (s *Store) PruneExpired(ctx context.Context, keepDays int) (err error) {
	if keepDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer s.rollbackOrCommit(ctx, tx, &err)

	tag, err := tx.Exec(ctx, `DELETE FROM archived_accounts WHERE archived_at < $1`, cutoff)
	if err != nil {
		return errors.Wrap(err, "prune archives")
	}
	pruned := tag.RowsAffected()

	_, err = tx.Exec(ctx, `
		DELETE FROM sweep_runs
		WHERE finished_at < $1
		AND NOT EXISTS (SELECT 1 FROM archived_accounts WHERE run_id = sweep_runs.run_id)
	`, cutoff)
	if err != nil {
		return errors.Wrap(err, "prune runs")
	}

	if pruned > 0 {
		s.logger.Info("pruned expired archives", zap.Int64("accounts", pruned), zap.Time("cutoff", cutoff))
	}
	return nil
}

// attributesJSON marshals a snapshot map, normalizing nil to an empty object
// so the JSONB column never stores SQL null semantics.
func attributesJSON(attrs map[string][]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string][]string{}
	}
	return json.Marshal(attrs)
}
