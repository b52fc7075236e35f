package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/apparatuslabs/apparatus/internal/model"
	"github.com/apparatuslabs/apparatus/migrations"
)

// sqliteTimeLayout is fixed-width UTC so lexical order on the stored text
// matches chronological order. Reads parse with RFC3339Nano to also accept
// rows written by SQL defaults.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is the single-file Store used for local and zero-dependency
// deployments. Pure Go driver, so it cross-compiles without cgo.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database file at path and
// applies pending migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: empty sqlite path")
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	db := &SQLite{db: sqlDB, logger: logger}
	if err := runMigrations(ctx, (*sqliteConn)(db), migrations.SQLite(), logger); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// sqliteConn adapts the handle to the migration runner.
type sqliteConn SQLite

func (c *sqliteConn) exec(ctx context.Context, query string, args ...any) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c *sqliteConn) queryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query)
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

func (db *SQLite) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *SQLite) Close(_ context.Context) error {
	return db.db.Close()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Experiments.

func (db *SQLite) CreateExperiment(ctx context.Context, name string) (model.Experiment, error) {
	exp := model.Experiment{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, created_at) VALUES ($1, $2, $3)`,
		exp.ID.String(), exp.Name, fmtTime(exp.CreatedAt),
	)
	if err != nil {
		return model.Experiment{}, fmt.Errorf("storage: insert experiment: %w", err)
	}
	return exp, nil
}

func (db *SQLite) GetExperiment(ctx context.Context, id uuid.UUID) (model.Experiment, error) {
	row := db.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM experiments WHERE id = $1`, id.String())
	exp, err := scanExperiment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Experiment{}, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Experiment{}, fmt.Errorf("storage: get experiment: %w", err)
	}
	return exp, nil
}

func (db *SQLite) ListExperiments(ctx context.Context) ([]model.Experiment, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM experiments ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list experiments: %w", err)
	}
	defer rows.Close()

	out := []model.Experiment{}
	for rows.Next() {
		exp, err := scanExperiment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("storage: scan experiment: %w", err)
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

func scanExperiment(scan func(...any) error) (model.Experiment, error) {
	var (
		exp     model.Experiment
		rawID   string
		rawTime string
	)
	if err := scan(&rawID, &exp.Name, &rawTime); err != nil {
		return model.Experiment{}, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return model.Experiment{}, err
	}
	createdAt, err := parseTime(rawTime)
	if err != nil {
		return model.Experiment{}, err
	}
	exp.ID = id
	exp.CreatedAt = createdAt
	return exp, nil
}

// Runs.

func (db *SQLite) CreateRun(ctx context.Context, req CreateRunRequest) (model.Run, error) {
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

	var parentID any
	if run.ParentRunID != nil {
		parentID = run.ParentRunID.String()
	}
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, experiment_id, parent_run_id, depth, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID.String(), run.Name, run.ExperimentID.String(), parentID, run.Depth, fmtTime(run.CreatedAt),
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: insert run: %w", err)
	}
	return run, nil
}

func (db *SQLite) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	row := db.db.QueryRowContext(ctx,
		`SELECT id, name, experiment_id, parent_run_id, depth, created_at FROM runs WHERE id = $1`,
		id.String())
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

func (db *SQLite) ListRootRuns(ctx context.Context, experimentID uuid.UUID) ([]model.Run, error) {
	return db.queryRuns(ctx,
		`SELECT id, name, experiment_id, parent_run_id, depth, created_at
		 FROM runs WHERE experiment_id = $1 AND depth = 0
		 ORDER BY created_at DESC, id`, experimentID.String())
}

func (db *SQLite) ListChildren(ctx context.Context, runID uuid.UUID) ([]model.Run, error) {
	return db.queryRuns(ctx,
		`SELECT id, name, experiment_id, parent_run_id, depth, created_at
		 FROM runs WHERE parent_run_id = $1
		 ORDER BY created_at DESC, id`, runID.String())
}

// Ancestors returns the chain above runID, root first.
func (db *SQLite) Ancestors(ctx context.Context, runID uuid.UUID) ([]model.Run, error) {
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

func (db *SQLite) queryRuns(ctx context.Context, query string, args ...any) ([]model.Run, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query runs: %w", err)
	}
	defer rows.Close()

	out := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(scan func(...any) error) (model.Run, error) {
	var (
		run       model.Run
		rawID     string
		rawExp    string
		rawParent sql.NullString
		rawTime   string
	)
	if err := scan(&rawID, &run.Name, &rawExp, &rawParent, &run.Depth, &rawTime); err != nil {
		return model.Run{}, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return model.Run{}, err
	}
	expID, err := uuid.Parse(rawExp)
	if err != nil {
		return model.Run{}, err
	}
	if rawParent.Valid {
		parentID, err := uuid.Parse(rawParent.String)
		if err != nil {
			return model.Run{}, err
		}
		run.ParentRunID = &parentID
	}
	createdAt, err := parseTime(rawTime)
	if err != nil {
		return model.Run{}, err
	}

	run.ID = id
	run.ExperimentID = expID
	run.CreatedAt = createdAt
	return run, nil
}

// Params.

func (db *SQLite) SetParam(ctx context.Context, runID uuid.UUID, key string, value model.ParamValue) error {
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

	_, err := db.db.ExecContext(ctx,
		`INSERT INTO params (run_id, key, value_type, value_text, value_bool, value_int, value_float, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id, key) DO UPDATE SET
		   value_type = excluded.value_type,
		   value_text = excluded.value_text,
		   value_bool = excluded.value_bool,
		   value_int = excluded.value_int,
		   value_float = excluded.value_float,
		   updated_at = excluded.updated_at`,
		runID.String(), key, string(value.Type), text, boolVal, intVal, floatVal, fmtTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert param: %w", err)
	}
	return nil
}

func (db *SQLite) ListParams(ctx context.Context, runID uuid.UUID) ([]model.Param, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.db.QueryContext(ctx,
		`SELECT key, value_type, value_text, value_bool, value_int, value_float, updated_at
		 FROM params WHERE run_id = $1 ORDER BY key`, runID.String())
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
			rawTime  string
		)
		if err := rows.Scan(&p.Key, &typeTag, &text, &boolVal, &intVal, &floatVal, &rawTime); err != nil {
			return nil, fmt.Errorf("storage: scan param: %w", err)
		}
		updatedAt, err := parseTime(rawTime)
		if err != nil {
			return nil, err
		}
		p.RunID = runID
		p.UpdatedAt = updatedAt
		p.Value = assembleParamValue(typeTag, text, boolVal, intVal, floatVal)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Metrics.

func (db *SQLite) AppendMetrics(ctx context.Context, runID uuid.UUID, key string, points []model.MetricPoint, loggedAt time.Time) error {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO metrics (run_id, key, x_value, y_value, logged_at) VALUES `)
	args := make([]any, 0, len(points)*5)
	for i, pt := range points {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, runID.String(), key, pt.XValue, pt.YValue, fmtTime(loggedAt))
	}

	if _, err := db.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("storage: insert metrics: %w", err)
	}
	return nil
}

func (db *SQLite) GetSeries(ctx context.Context, runID uuid.UUID, key string) ([]model.SeriesPoint, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.db.QueryContext(ctx,
		`SELECT x_value, y_value, logged_at FROM metrics
		 WHERE run_id = $1 AND key = $2 ORDER BY id`, runID.String(), key)
	if err != nil {
		return nil, fmt.Errorf("storage: get series: %w", err)
	}
	defer rows.Close()

	out := []model.SeriesPoint{}
	for rows.Next() {
		var (
			pt      model.SeriesPoint
			rawTime string
		)
		if err := rows.Scan(&pt.XValue, &pt.YValue, &rawTime); err != nil {
			return nil, fmt.Errorf("storage: scan series point: %w", err)
		}
		loggedAt, err := parseTime(rawTime)
		if err != nil {
			return nil, err
		}
		pt.LoggedAt = loggedAt
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (db *SQLite) ListSeriesKeys(ctx context.Context, runID uuid.UUID) ([]string, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.db.QueryContext(ctx,
		`SELECT DISTINCT key FROM metrics WHERE run_id = $1 ORDER BY key`, runID.String())
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

func (db *SQLite) PutArtifact(ctx context.Context, artifact model.Artifact) error {
	if err := db.checkRunExists(ctx, artifact.RunID); err != nil {
		return err
	}

	_, err := db.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, path, uri, content_type, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, path) DO UPDATE SET
		   uri = excluded.uri,
		   content_type = excluded.content_type,
		   uploaded_at = excluded.uploaded_at`,
		artifact.RunID.String(), artifact.Path, artifact.URI, artifact.ContentType, fmtTime(artifact.UploadedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert artifact: %w", err)
	}
	return nil
}

func (db *SQLite) GetArtifact(ctx context.Context, runID uuid.UUID, path string) (model.Artifact, error) {
	row := db.db.QueryRowContext(ctx,
		`SELECT path, uri, content_type, uploaded_at FROM artifacts
		 WHERE run_id = $1 AND path = $2`, runID.String(), path)

	a := model.Artifact{RunID: runID}
	var rawTime string
	err := row.Scan(&a.Path, &a.URI, &a.ContentType, &rawTime)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Artifact{}, fmt.Errorf("artifact %s/%s: %w", runID, path, ErrNotFound)
	}
	if err != nil {
		return model.Artifact{}, fmt.Errorf("storage: get artifact: %w", err)
	}
	uploadedAt, err := parseTime(rawTime)
	if err != nil {
		return model.Artifact{}, err
	}
	a.UploadedAt = uploadedAt
	return a, nil
}

func (db *SQLite) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]model.Artifact, error) {
	if err := db.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := db.db.QueryContext(ctx,
		`SELECT path, uri, content_type, uploaded_at FROM artifacts
		 WHERE run_id = $1 ORDER BY path`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("storage: list artifacts: %w", err)
	}
	defer rows.Close()

	out := []model.Artifact{}
	for rows.Next() {
		a := model.Artifact{RunID: runID}
		var rawTime string
		if err := rows.Scan(&a.Path, &a.URI, &a.ContentType, &rawTime); err != nil {
			return nil, fmt.Errorf("storage: scan artifact: %w", err)
		}
		uploadedAt, err := parseTime(rawTime)
		if err != nil {
			return nil, err
		}
		a.UploadedAt = uploadedAt
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *SQLite) checkRunExists(ctx context.Context, runID uuid.UUID) error {
	var one int
	err := db.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = $1`, runID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: check run: %w", err)
	}
	return nil
}
