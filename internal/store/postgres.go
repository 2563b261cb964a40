package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/depsync/internal/db/sqlc"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

var _ VersionStore = (*postgresStore)(nil)

// NewPostgresStore creates a database-backed VersionStore. The schema is
// expected to be migrated already.
func NewPostgresStore(pool *pgxpool.Pool) VersionStore {
	return &postgresStore{pool: pool}
}

func (p *postgresStore) GetPublished(ctx context.Context, repository string) (VersionSet, error) {
	versions, err := sqlc.New(p.pool).ListPublishedVersions(ctx, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to list published versions: %w", err)
	}
	return toSet(versions), nil
}

func (p *postgresStore) GetRejected(ctx context.Context, repository string) (VersionSet, error) {
	versions, err := sqlc.New(p.pool).ListRejectedVersions(ctx, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected versions: %w", err)
	}
	return toSet(versions), nil
}

func (p *postgresStore) PutPublished(ctx context.Context, repository, version string, at time.Time) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	queries := sqlc.New(p.pool).WithTx(tx)

	rejected, err := queries.IsVersionRejected(ctx, sqlc.IsVersionRejectedParams{
		Repository: repository,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("failed to check rejected versions: %w", err)
	}
	if rejected {
		return ErrVersionRejected
	}

	if err := queries.InsertPublishedVersion(ctx, sqlc.InsertPublishedVersionParams{
		Repository:  repository,
		Version:     version,
		LastUpdated: at.UTC(),
	}); err != nil {
		return fmt.Errorf("failed to insert published version: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *postgresStore) PutRejected(ctx context.Context, repository, version string, at time.Time) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	queries := sqlc.New(p.pool).WithTx(tx)

	published, err := queries.IsVersionPublished(ctx, sqlc.IsVersionPublishedParams{
		Repository: repository,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("failed to check published versions: %w", err)
	}
	if published {
		return nil
	}

	if err := queries.InsertRejectedVersion(ctx, sqlc.InsertRejectedVersionParams{
		Repository:  repository,
		Version:     version,
		LastUpdated: at.UTC(),
	}); err != nil {
		return fmt.Errorf("failed to insert rejected version: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *postgresStore) LastActivity(ctx context.Context, repository string) (*time.Time, error) {
	last, err := sqlc.New(p.pool).GetLastActivity(ctx, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to query last activity: %w", err)
	}
	return last, nil
}

func (p *postgresStore) ListRepositories(ctx context.Context) ([]RepositorySummary, error) {
	rows, err := sqlc.New(p.pool).ListVersionRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list version records: %w", err)
	}

	// rows are ordered by repository
	var summaries []RepositorySummary
	for _, row := range rows {
		if len(summaries) == 0 || summaries[len(summaries)-1].Repository != row.Repository {
			summaries = append(summaries, RepositorySummary{
				Repository: row.Repository,
				Published:  []string{},
				Rejected:   []string{},
			})
		}
		summary := &summaries[len(summaries)-1]
		if row.Rejected {
			summary.Rejected = append(summary.Rejected, row.Version)
		} else {
			summary.Published = append(summary.Published, row.Version)
		}
		if summary.LastActivity == nil || row.LastUpdated.After(*summary.LastActivity) {
			at := row.LastUpdated
			summary.LastActivity = &at
		}
	}
	if summaries == nil {
		summaries = []RepositorySummary{}
	}
	return summaries, nil
}

// Close is a no-op; the pool is owned by the caller.
func (*postgresStore) Close() error {
	return nil
}

func toSet(versions []string) VersionSet {
	set := make(VersionSet, len(versions))
	for _, v := range versions {
		set.Add(v)
	}
	return set
}
