package registry

import (
	"context"
	"errors"
	"time"

	"stock-signals/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

// Pool is the subset of pgxpool.Pool the registry needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	pool   Pool
	tracer trace.Tracer
}

func NewRepository(pool Pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS model_versions (
	model_key TEXT NOT NULL,
	version INT NOT NULL,
	schema_version INT NOT NULL,
	trained_at TIMESTAMPTZ NOT NULL,
	sample_count INT NOT NULL,
	test_count INT NOT NULL,
	metrics JSONB NOT NULL DEFAULT '{}',
	hyperparams JSONB NOT NULL DEFAULT '{}',
	artifact_format TEXT NOT NULL,
	artifact BYTEA NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (model_key, version)
);
CREATE INDEX IF NOT EXISTS idx_model_versions_active
	ON model_versions (model_key) WHERE is_active;
`

func (r *Repository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "model-registry.migrate")
	defer span.End()

	_, err := r.pool.Exec(ctx, createTableSQL)
	return err
}

func (r *Repository) NextVersion(ctx context.Context, modelKey string) (int, error) {
	_, span := r.tracer.Start(ctx, "model-registry.next-version")
	defer span.End()

	var version int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE model_key = $1`,
		modelKey,
	).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *Repository) InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.insert-version")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO model_versions
			(model_key, version, schema_version, trained_at, sample_count, test_count,
			 metrics, hyperparams, artifact_format, artifact, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)`,
		model.ModelKey,
		model.Version,
		model.SchemaVersion,
		model.TrainedAt.UTC(),
		model.SampleCount,
		model.TestCount,
		model.MetricsJSON,
		model.HyperparamsJSON,
		model.ArtifactFormat,
		model.ArtifactBlob,
	)
	if err != nil {
		return nil, err
	}
	inserted := model
	inserted.IsActive = false
	return &inserted, nil
}

// GetActiveModel returns the promoted version for a key, or a ModelStateError
// when no version has been activated yet.
func (r *Repository) GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-active")
	defer span.End()

	var (
		model     domain.ModelVersion
		trainedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT model_key, version, schema_version, trained_at, sample_count, test_count,
				metrics::TEXT, hyperparams::TEXT, artifact_format, artifact, is_active
		 FROM model_versions
		 WHERE model_key = $1 AND is_active
		 ORDER BY version DESC
		 LIMIT 1`,
		modelKey,
	).Scan(
		&model.ModelKey,
		&model.Version,
		&model.SchemaVersion,
		&trainedAt,
		&model.SampleCount,
		&model.TestCount,
		&model.MetricsJSON,
		&model.HyperparamsJSON,
		&model.ArtifactFormat,
		&model.ArtifactBlob,
		&model.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ModelStateError{ModelKey: modelKey, Reason: "no active model"}
	}
	if err != nil {
		return nil, err
	}
	model.TrainedAt = trainedAt.UTC()
	return &model, nil
}

// ActivateModel promotes one version and demotes the rest atomically. Fails
// with pgx.ErrNoRows when the target version does not exist.
func (r *Repository) ActivateModel(ctx context.Context, modelKey string, version int) error {
	_, span := r.tracer.Start(ctx, "model-registry.activate")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE model_versions SET is_active = FALSE WHERE model_key = $1 AND is_active`,
		modelKey,
	); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE model_versions SET is_active = TRUE WHERE model_key = $1 AND version = $2`,
		modelKey, version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(ctx)
}
