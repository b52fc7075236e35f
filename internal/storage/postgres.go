package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apparatuslabs/apparatus/internal/model"
	"github.com/apparatuslabs/apparatus/migrations"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects a pool, verifies it, and applies pending migrations.
func OpenPostgres(ctx context.Context, connString string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}

	db := &Postgres{pool: pool, logger: logger}
	if err := runMigrations(ctx, (*pgConn)(db), migrations.Postgres(), logger); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// pgConn adapts the pool to the migration runner.
type pgConn Postgres

func (c *pgConn) exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.pool.Exec(ctx, sql, args...)
	return err
}

func (c *pgConn) queryStrings(ctx context.Context, sql string) ([]string, error) {
	rows, err := c.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *Postgres) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *Postgres) Close(_ context.Context) error {
	db.pool.Close()
	return nil
}

// Experiments.

func (db *Postgres) CreateExperiment(ctx context.Context, name string) (model.Experiment, error) {
	exp := model.Experiment{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO experiments (id, name, created_at) VALUES ($1, $2, $3)`,
		exp.ID, exp.Name, exp.CreatedAt,
	)
	if err != nil {
		return model.Experiment{}, fmt.Errorf("storage: insert experiment: %w", err)
	}
	return exp, nil
}

func (db *Postgres) GetExperiment(ctx context.Context, id uuid.UUID) (model.Experiment, error) {
	var exp model.Experiment
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM experiments WHERE id = $1`, id,
	).Scan(&exp.ID, &exp.Name, &exp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Experiment{}, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Experiment{}, fmt.Errorf("storage: get experiment: %w", err)
	}
	return exp, nil
}

func (db *Postgres) ListExperiments(ctx context.Context) ([]model.Experiment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, created_at FROM experiments ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list experiments: %w", err)
	}
	defer rows.Close()

	out := []model.Experiment{}
	for rows.Next() {
		var exp model.Experiment
		if err := rows.Scan(&exp.ID, &exp.Name, &exp.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan experiment: %w", err)
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// Runs.

func (db *Postgres) CreateRun(ctx context.Context, req CreateRunRequest) (model.Run, error) {
	run := model.Run{
		ID:           uuid.New(),
		Name:         req.Name,
		ExperimentID: model.DefaultExperimentID,
		CreatedAt:    time.Now().UTC(),
	}

	if req.ParentRunID != nil {
		parent, err := db.GetRun(ctx, *req.ParentRunID)
		if err != nil {
			return model.Run{}, err
		}
		if parent.Depth+1 > model.MaxRunDepth {
			return model.Run{}, ErrDepthExceeded
		}
		run.ParentRunID = req.ParentRunID
		run.Depth = parent.Depth + 1
		run.ExperimentID = parent.ExperimentID
	} else if req.ExperimentID != nil {
		exp, err := db.GetExperiment(ctx, *req.ExperimentID)
		if err != nil {
			return model.Run{}, err
		}
		run.ExperimentID = exp.ID
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO runs (id, name, experiment_id, parent_run_id, depth, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Name, run.ExperimentID, run.ParentRunID, run.Depth, run.CreatedAt,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: insert run: %w", err)
	}
	return run, nil
}

func (db *Postgres) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	var run model.Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, experiment_id, parent_run_id, depth, created_at FROM runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Name, &run.ExperimentID, &run.ParentRunID, &run.Depth, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

func (db *Postgres) ListRootRuns(ctx context.Context, experimentID uuid.UUID) ([]model.Run, error) {
	return db.queryRuns(ctx,
		`SELECT id, name, experiment_id, parent_run_id, depth, created_at
		 FROM runs WHERE experiment_id = $1 AND depth = 0
		 ORDER BY created_at DESC, id`, experimentID)
}

func (db *Postgres) ListChildren(ctx context.Context, runID uuid.UUID) ([]model.Run, error) {
	return db.queryRuns(ctx,
		`SELECT id, name, experiment_id, parent_run_id, depth, created_at
		 FROM runs WHERE parent_run_id = $1
		 ORDER BY created_at DESC, id`, runID)
}

// Ancestors returns the chain above runID, root first. With nesting capped
// at two levels the walk is at most two reads.
func (db *Postgres) Ancestors(ctx context.Context, runID uuid.UUID) ([]model.Run, error) {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var chain []model.Run
	for run.ParentRunID != nil {
		parent, err := db.GetRun(ctx, *run.ParentRunID)
		if err != nil {
			return nil, err
		}
		chain = append([]model.Run{parent}, chain...)
		run = parent
	}
	return chain, nil
}

func (db *Postgres) queryRuns(ctx context.Context, sql string, args ...any) ([]model.Run, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query runs: %w", err)
	}
	defer rows.Close()

	out := []model.Run{}
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(&run.ID, &run.Name, &run.ExperimentID, &run.ParentRunID, &run.Depth, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Params.

func (db *Postgres) SetParam(ctx context.Context, runID uuid.UUID, key string, value model.ParamValue) error {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return err
	}

	var (
		text     *string
		boolVal  *bool
		intVal   *int64
		floatVal *float64
	)
	switch value.Type {
	case model.ParamString:
		text = &value.Text
	case model.ParamBool:
		boolVal = &value.Bool
	case model.ParamInt:
		intVal = &value.Int
	case model.ParamFloat:
		floatVal = &value.Float
	default:
		return fmt.Errorf("param %q: %w", key, model.ErrInvalidParamType)
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO params (run_id, key, value_type, value_text, value_bool, value_int, value_float, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, key) DO UPDATE SET
		   value_type = EXCLUDED.value_type,
		   value_text = EXCLUDED.value_text,
		   value_bool = EXCLUDED.value_bool,
		   value_int = EXCLUDED.value_int,
		   value_float = EXCLUDED.value_float,
		   updated_at = EXCLUDED.updated_at`,
		runID, key, string(value.Type), text, boolVal, intVal, floatVal, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert param: %w", err)
	}
	return nil
}

func (db *Postgres) ListParams(ctx context.Context, runID uuid.UUID) ([]model.Param, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT run_id, key, value_type, value_text, value_bool, value_int, value_float, updated_at
		 FROM params WHERE run_id = $1 ORDER BY key`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: list params: %w", err)
	}
	defer rows.Close()

	out := []model.Param{}
	for rows.Next() {
		var (
			p        model.Param
			typeTag  string
			text     *string
			boolVal  *bool
			intVal   *int64
			floatVal *float64
		)
		if err := rows.Scan(&p.RunID, &p.Key, &typeTag, &text, &boolVal, &intVal, &floatVal, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan param: %w", err)
		}
		p.Value = assembleParamValue(typeTag, text, boolVal, intVal, floatVal)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Metrics.

func (db *Postgres) AppendMetrics(ctx context.Context, runID uuid.UUID, key string, points []model.MetricPoint, loggedAt time.Time) error {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	// One multi-row INSERT so a batch lands contiguously in arrival order.
	var sb strings.Builder
	sb.WriteString(`INSERT INTO metrics (run_id, key, x_value, y_value, logged_at) VALUES `)
	args := make([]any, 0, len(points)*5)
	for i, pt := range points {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, runID, key, pt.XValue, pt.YValue, loggedAt)
	}

	if _, err := db.pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("storage: insert metrics: %w", err)
	}
	return nil
}

func (db *Postgres) GetSeries(ctx context.Context, runID uuid.UUID, key string) ([]model.SeriesPoint, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT x_value, y_value, logged_at FROM metrics
		 WHERE run_id = $1 AND key = $2 ORDER BY id`, runID, key)
	if err != nil {
		return nil, fmt.Errorf("storage: get series: %w", err)
	}
	defer rows.Close()

	out := []model.SeriesPoint{}
	for rows.Next() {
		var pt model.SeriesPoint
		if err := rows.Scan(&pt.XValue, &pt.YValue, &pt.LoggedAt); err != nil {
			return nil, fmt.Errorf("storage: scan series point: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (db *Postgres) ListSeriesKeys(ctx context.Context, runID uuid.UUID) ([]string, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT key FROM metrics WHERE run_id = $1 ORDER BY key`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: list series keys: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan series key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Artifacts.

func (db *Postgres) PutArtifact(ctx context.Context, artifact model.Artifact) error {
	if err := db.checkRunExists(ctx, artifact.RunID); err != nil {
		return err
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO artifacts (run_id, path, uri, content_type, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, path) DO UPDATE SET
		   uri = EXCLUDED.uri,
		   content_type = EXCLUDED.content_type,
		   uploaded_at = EXCLUDED.uploaded_at`,
		artifact.RunID, artifact.Path, artifact.URI, artifact.ContentType, artifact.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert artifact: %w", err)
	}
	return nil
}

func (db *Postgres) GetArtifact(ctx context.Context, runID uuid.UUID, path string) (model.Artifact, error) {
	var a model.Artifact
	err := db.pool.QueryRow(ctx,
		`SELECT run_id, path, uri, content_type, uploaded_at FROM artifacts
		 WHERE run_id = $1 AND path = $2`, runID, path,
	).Scan(&a.RunID, &a.Path, &a.URI, &a.ContentType, &a.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Artifact{}, fmt.Errorf("artifact %s/%s: %w", runID, path, ErrNotFound)
	}
	if err != nil {
		return model.Artifact{}, fmt.Errorf("storage: get artifact: %w", err)
	}
	return a, nil
}

func (db *Postgres) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]model.Artifact, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT run_id, path, uri, content_type, uploaded_at FROM artifacts
		 WHERE run_id = $1 ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: list artifacts: %w", err)
	}
	defer rows.Close()

	out := []model.Artifact{}
	for rows.Next() {
		var a model.Artifact
		if err := rows.Scan(&a.RunID, &a.Path, &a.URI, &a.ContentType, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("storage: scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *Postgres) checkRunExists(ctx context.Context, runID uuid.UUID) error {
	var one int
	err := db.pool.QueryRow(ctx, `SELECT 1 FROM runs WHERE id = $1`, runID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: check run: %w", err)
	}
	return nil
}
