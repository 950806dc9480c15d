// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "portfolio-sync/internal/errors"
	"portfolio-sync/internal/model"
)

const projectColumns = `id, source_id, name, description, url, homepage, language, stars,
	topics, is_visible, order_index, is_manual, last_synced_at, created_at, updated_at`

// Store persists projects and the sync cache state in Postgres.
type Store struct {
	pool                 *pgxpool.Pool
	defaultCacheDuration int
}

// New creates a Store. defaultCacheDurationMinutes seeds the sync_state
// singleton on first read.
func New(pool *pgxpool.Pool, defaultCacheDurationMinutes int) *Store {
	return &Store{
		pool:                 pool,
		defaultCacheDuration: defaultCacheDurationMinutes,
	}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// AllProjects returns every project ordered by order_index, ties broken by id.
func (s *Store) AllProjects(ctx context.Context) ([]model.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects ORDER BY order_index, id`, projectColumns)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// VisibleProjects returns only the publicly listed projects, in display order.
func (s *Store) VisibleProjects(ctx context.Context) ([]model.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE is_visible ORDER BY order_index, id`, projectColumns)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing visible projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// GetProject returns one project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (model.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns)

	p, err := scanProject(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, apperrors.ErrProjectNotFound
		}
		return model.Project{}, fmt.Errorf("getting project %d: %w", id, err)
	}
	return p, nil
}

// UpsertBatch applies one reconciliation pass atomically: provider-field
// updates for matched projects, appends for new ones, soft-hides for the
// disappeared. Admin-owned columns of existing rows are never written except
// is_visible on the explicit hide list. The append position is computed
// inside the transaction so a reorder racing with the sync cannot produce
// colliding order indexes from a stale max.
func (s *Store) UpsertBatch(ctx context.Context, upserts []model.Project, hide []int64, syncedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit.

	var nextOrder int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(order_index) + 1, 0) FROM projects`).Scan(&nextOrder); err != nil {
		return fmt.Errorf("computing next order index: %w", err)
	}

	for _, p := range upserts {
		if p.ID == 0 {
			_, err = tx.Exec(ctx, `
				INSERT INTO projects (source_id, name, description, url, homepage, language, stars,
					topics, is_visible, order_index, is_manual, last_synced_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, false, $10)`,
				p.SourceID, p.Name, p.Description, p.URL, p.Homepage, p.Language, p.Stars,
				p.Topics, nextOrder, syncedAt,
			)
			if err != nil {
				return fmt.Errorf("inserting project %q: %w", p.Name, err)
			}
			nextOrder++
			continue
		}

		_, err = tx.Exec(ctx, `
			UPDATE projects
			SET name = $2, description = $3, url = $4, homepage = $5, language = $6,
				stars = $7, topics = $8, last_synced_at = $9, updated_at = now()
			WHERE id = $1`,
			p.ID, p.Name, p.Description, p.URL, p.Homepage, p.Language,
			p.Stars, p.Topics, syncedAt,
		)
		if err != nil {
			return fmt.Errorf("updating project %d: %w", p.ID, err)
		}
	}

	if len(hide) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE projects
			SET is_visible = false, last_synced_at = $2, updated_at = now()
			WHERE id = ANY($1)`,
			hide, syncedAt,
		)
		if err != nil {
			return fmt.Errorf("hiding disappeared projects: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert transaction: %w", err)
	}
	return nil
}

// CreateManualProject inserts an admin-created project, appended after all
// existing projects. The order index is computed in the same transaction as
// the insert.
func (s *Store) CreateManualProject(ctx context.Context, p model.Project) (model.Project, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Project{}, fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var nextOrder int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(order_index) + 1, 0) FROM projects`).Scan(&nextOrder); err != nil {
		return model.Project{}, fmt.Errorf("computing next order index: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO projects (source_id, name, description, url, homepage, language, stars,
			topics, is_visible, order_index, is_manual, last_synced_at)
		VALUES (NULL, $1, $2, $3, $4, $5, $6, $7, $8, $9, true, NULL)
		RETURNING %s`, projectColumns)

	created, err := scanProject(tx.QueryRow(ctx, query,
		p.Name, p.Description, p.URL, p.Homepage, p.Language, p.Stars,
		p.Topics, p.IsVisible, nextOrder,
	))
	if err != nil {
		return model.Project{}, fmt.Errorf("inserting manual project: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Project{}, fmt.Errorf("committing create transaction: %w", err)
	}
	return created, nil
}

// UpdateManualProject replaces the editable fields of a manual project.
// Source-linked projects are rejected: their provider fields belong to sync.
func (s *Store) UpdateManualProject(ctx context.Context, id int64, p model.Project) (model.Project, error) {
	if err := s.requireManual(ctx, id); err != nil {
		return model.Project{}, err
	}

	query := fmt.Sprintf(`
		UPDATE projects
		SET name = $2, description = $3, url = $4, homepage = $5, language = $6,
			stars = $7, topics = $8, updated_at = now()
		WHERE id = $1 AND is_manual
		RETURNING %s`, projectColumns)

	updated, err := scanProject(s.pool.QueryRow(ctx, query,
		id, p.Name, p.Description, p.URL, p.Homepage, p.Language, p.Stars, p.Topics,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, apperrors.ErrProjectNotFound
		}
		return model.Project{}, fmt.Errorf("updating manual project %d: %w", id, err)
	}
	return updated, nil
}

// DeleteProject removes a manual project. Deleting a source-linked project is
// an invariant violation, not a no-op.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	if err := s.requireManual(ctx, id); err != nil {
		return err
	}

	ct, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND is_manual`, id)
	if err != nil {
		return fmt.Errorf("deleting project %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrProjectNotFound
	}
	return nil
}

// SetVisibility toggles the admin-owned visibility flag.
func (s *Store) SetVisibility(ctx context.Context, id int64, visible bool) (model.Project, error) {
	query := fmt.Sprintf(`
		UPDATE projects SET is_visible = $2, updated_at = now()
		WHERE id = $1
		RETURNING %s`, projectColumns)

	p, err := scanProject(s.pool.QueryRow(ctx, query, id, visible))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, apperrors.ErrProjectNotFound
		}
		return model.Project{}, fmt.Errorf("setting visibility of project %d: %w", id, err)
	}
	return p, nil
}

// Reorder applies all order updates as one atomic unit. A missing id aborts
// the whole batch so a reader never observes a half-applied ordering.
func (s *Store) Reorder(ctx context.Context, items []model.ReorderItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning reorder transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, item := range items {
		ct, err := tx.Exec(ctx,
			`UPDATE projects SET order_index = $2, updated_at = now() WHERE id = $1`,
			item.ID, item.OrderIndex,
		)
		if err != nil {
			return fmt.Errorf("reordering project %d: %w", item.ID, err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("reordering project %d: %w", item.ID, apperrors.ErrProjectNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reorder transaction: %w", err)
	}
	return nil
}

// GetSyncState returns the sync cache singleton, creating it with defaults
// when the row does not exist yet. Reads after the first are read-only.
func (s *Store) GetSyncState(ctx context.Context) (model.SyncState, error) {
	state, err := s.readSyncState(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO sync_state (id, cache_duration_minutes)
			VALUES (1, $1)
			ON CONFLICT (id) DO NOTHING`,
			s.defaultCacheDuration,
		); err != nil {
			return model.SyncState{}, fmt.Errorf("seeding sync state: %w", err)
		}
		state, err = s.readSyncState(ctx)
	}
	if err != nil {
		return model.SyncState{}, fmt.Errorf("reading sync state: %w", err)
	}
	return state, nil
}

func (s *Store) readSyncState(ctx context.Context) (model.SyncState, error) {
	var state model.SyncState
	err := s.pool.QueryRow(ctx,
		`SELECT last_sync_at, cache_duration_minutes FROM sync_state WHERE id = 1`,
	).Scan(&state.LastSyncAt, &state.CacheDurationMinutes)
	return state, err
}

// RecordSync advances the last-sync timestamp after a successful pass.
func (s *Store) RecordSync(ctx context.Context, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (id, last_sync_at, cache_duration_minutes)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET last_sync_at = EXCLUDED.last_sync_at, updated_at = now()`,
		at, s.defaultCacheDuration,
	)
	if err != nil {
		return fmt.Errorf("recording sync time: %w", err)
	}
	return nil
}

// SetCacheDuration updates the operator-configurable minimum sync interval.
func (s *Store) SetCacheDuration(ctx context.Context, minutes int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (id, cache_duration_minutes)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET cache_duration_minutes = EXCLUDED.cache_duration_minutes, updated_at = now()`,
		minutes,
	)
	if err != nil {
		return fmt.Errorf("setting cache duration: %w", err)
	}
	return nil
}

// WithSyncLock runs fn while holding a Postgres session advisory lock, so two
// sync passes for the same account cannot interleave. Lock and unlock happen
// on the same acquired connection: pg_advisory_lock is session-level and an
// unlock on a different connection is a no-op.
func (s *Store) WithSyncLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for sync lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return fmt.Errorf("acquiring sync lock: %w", err)
	}
	// Unlock must fire even if ctx was cancelled mid-fn.
	defer conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key) //nolint:errcheck

	return fn(ctx)
}

// requireManual fails with ErrProjectNotFound or ErrNotManual unless id
// refers to a manually created project.
func (s *Store) requireManual(ctx context.Context, id int64) error {
	var isManual bool
	err := s.pool.QueryRow(ctx, `SELECT is_manual FROM projects WHERE id = $1`, id).Scan(&isManual)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrProjectNotFound
		}
		return fmt.Errorf("checking project %d: %w", id, err)
	}
	if !isManual {
		return apperrors.ErrNotManual
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (model.Project, error) {
	var p model.Project
	err := row.Scan(
		&p.ID,
		&p.SourceID,
		&p.Name,
		&p.Description,
		&p.URL,
		&p.Homepage,
		&p.Language,
		&p.Stars,
		&p.Topics,
		&p.IsVisible,
		&p.OrderIndex,
		&p.IsManual,
		&p.LastSyncedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanProjects(rows pgx.Rows) ([]model.Project, error) {
	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return projects, nil
}
