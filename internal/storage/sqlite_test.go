package storage_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apparatuslabs/apparatus/internal/model"
	"github.com/apparatuslabs/apparatus/internal/storage"
)

func newSQLiteStore(t *testing.T) storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apparatus.db")
	store, err := storage.OpenSQLite(context.Background(), path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func TestOpenDispatchRejectsUnknownScheme(t *testing.T) {
	_, err := storage.Open(context.Background(), "mysql://localhost/x", slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apparatus.db")
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	first, err := storage.OpenSQLite(ctx, path, logger)
	require.NoError(t, err)
	exp, err := first.CreateExperiment(ctx, "kept")
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := storage.OpenSQLite(ctx, path, logger)
	require.NoError(t, err)
	defer second.Close(ctx)

	got, err := second.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
}

func TestDefaultExperimentIsSeeded(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	exp, err := store.GetExperiment(ctx, model.DefaultExperimentID)
	require.NoError(t, err)
	assert.Equal(t, "Default", exp.Name)
}

func TestCreateRunDefaultsToDefaultExperiment(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "baseline"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultExperimentID, run.ExperimentID)
	assert.Equal(t, 0, run.Depth)
	assert.Nil(t, run.ParentRunID)
	assert.True(t, run.IsRoot())

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "baseline", got.Name)
}

func TestCreateRunUnknownExperiment(t *testing.T) {
	store := newSQLiteStore(t)

	missing := uuid.New()
	_, err := store.CreateRun(context.Background(), storage.CreateRunRequest{Name: "x", ExperimentID: &missing})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateRunUnknownParent(t *testing.T) {
	store := newSQLiteStore(t)

	missing := uuid.New()
	_, err := store.CreateRun(context.Background(), storage.CreateRunRequest{Name: "x", ParentRunID: &missing})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunNestingDepthLimit(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	root, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "root"})
	require.NoError(t, err)

	child, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "child", ParentRunID: &root.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, child.Depth)

	grandchild, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "grandchild", ParentRunID: &child.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, grandchild.Depth)

	_, err = store.CreateRun(ctx, storage.CreateRunRequest{Name: "too deep", ParentRunID: &grandchild.ID})
	require.ErrorIs(t, err, storage.ErrDepthExceeded)
	assert.Contains(t, err.Error(), "maximum nesting level")
}

func TestChildInheritsParentExperiment(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	exp, err := store.CreateExperiment(ctx, "tuning")
	require.NoError(t, err)
	other, err := store.CreateExperiment(ctx, "other")
	require.NoError(t, err)

	root, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "root", ExperimentID: &exp.ID})
	require.NoError(t, err)

	// The experiment of a nested run is derived from its parent; an
	// explicit experiment on a child request is ignored.
	child, err := store.CreateRun(ctx, storage.CreateRunRequest{
		Name:         "child",
		ExperimentID: &other.ID,
		ParentRunID:  &root.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, exp.ID, child.ExperimentID)
}

func TestListRootRunsNewestFirst(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	exp, err := store.CreateExperiment(ctx, "ordering")
	require.NoError(t, err)

	var created []uuid.UUID
	for _, name := range []string{"first", "second", "third"} {
		run, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: name, ExperimentID: &exp.ID})
		require.NoError(t, err)
		created = append(created, run.ID)
		time.Sleep(2 * time.Millisecond)
	}

	// Children must not show up in the root listing.
	_, err = store.CreateRun(ctx, storage.CreateRunRequest{Name: "nested", ParentRunID: &created[0]})
	require.NoError(t, err)

	roots, err := store.ListRootRuns(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, roots, 3)
	assert.Equal(t, created[2], roots[0].ID)
	assert.Equal(t, created[1], roots[1].ID)
	assert.Equal(t, created[0], roots[2].ID)
}

func TestListChildrenAndAncestors(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	root, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "root"})
	require.NoError(t, err)
	child, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "child", ParentRunID: &root.ID})
	require.NoError(t, err)
	grandchild, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "grandchild", ParentRunID: &child.ID})
	require.NoError(t, err)

	children, err := store.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	none, err := store.ListChildren(ctx, grandchild.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	chain, err := store.Ancestors(ctx, grandchild.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, root.ID, chain[0].ID)
	assert.Equal(t, child.ID, chain[1].ID)

	rootChain, err := store.Ancestors(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, rootChain)
}

func TestSetParamLastWriteWins(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "params"})
	require.NoError(t, err)

	lr, err := model.ParseParamValue("float", "0.01")
	require.NoError(t, err)
	require.NoError(t, store.SetParam(ctx, run.ID, "lr", lr))

	arch, err := model.ParseParamValue("string", "resnet-50")
	require.NoError(t, err)
	require.NoError(t, store.SetParam(ctx, run.ID, "arch", arch))

	params, err := store.ListParams(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "arch", params[0].Key)
	assert.Equal(t, "resnet-50", params[0].Value.Text)
	assert.Equal(t, "lr", params[1].Key)
	assert.Equal(t, 0.01, params[1].Value.Float)

	// Overwrite with a different type replaces the value wholesale.
	lrStr, err := model.ParseParamValue("string", "warmup")
	require.NoError(t, err)
	require.NoError(t, store.SetParam(ctx, run.ID, "lr", lrStr))

	params, err = store.ListParams(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, model.ParamString, params[1].Value.Type)
	assert.Equal(t, "warmup", params[1].Value.Text)
}

func TestSetParamUnknownRun(t *testing.T) {
	store := newSQLiteStore(t)

	v, err := model.ParseParamValue("int", "1")
	require.NoError(t, err)
	err = store.SetParam(context.Background(), uuid.New(), "k", v)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendMetricsPreservesArrivalOrder(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "metrics"})
	require.NoError(t, err)

	t0 := time.Now().UTC().Truncate(time.Millisecond)
	first := []model.MetricPoint{{XValue: 0, YValue: 1.0}, {XValue: 1, YValue: 0.8}}
	second := []model.MetricPoint{{XValue: 2, YValue: 0.6}}
	require.NoError(t, store.AppendMetrics(ctx, run.ID, "loss", first, t0))
	require.NoError(t, store.AppendMetrics(ctx, run.ID, "loss", second, t0.Add(time.Second)))
	require.NoError(t, store.AppendMetrics(ctx, run.ID, "acc", []model.MetricPoint{{XValue: 0, YValue: 0.5}}, t0))

	series, err := store.GetSeries(ctx, run.ID, "loss")
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, []float64{1.0, 0.8, 0.6}, []float64{series[0].YValue, series[1].YValue, series[2].YValue})
	assert.Equal(t, []float64{0, 1, 2}, []float64{series[0].XValue, series[1].XValue, series[2].XValue})
	assert.True(t, series[0].LoggedAt.Equal(t0))
	assert.True(t, series[2].LoggedAt.Equal(t0.Add(time.Second)))

	keys, err := store.ListSeriesKeys(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc", "loss"}, keys)
}

func TestGetSeriesUnknownKeyIsEmpty(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "empty"})
	require.NoError(t, err)

	series, err := store.GetSeries(ctx, run.ID, "never-logged")
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestAppendMetricsUnknownRun(t *testing.T) {
	store := newSQLiteStore(t)

	err := store.AppendMetrics(context.Background(), uuid.New(), "loss",
		[]model.MetricPoint{{XValue: 0, YValue: 1}}, time.Now())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestArtifactUpsertAndList(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, storage.CreateRunRequest{Name: "artifacts"})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.PutArtifact(ctx, model.Artifact{
		RunID: run.ID, Path: "model.pt", URI: "file://artifacts/a", ContentType: "application/octet-stream", UploadedAt: now,
	}))
	require.NoError(t, store.PutArtifact(ctx, model.Artifact{
		RunID: run.ID, Path: "plots/loss.png", URI: "file://artifacts/b", ContentType: "image/png", UploadedAt: now,
	}))

	// Re-upload to the same logical path replaces the record.
	require.NoError(t, store.PutArtifact(ctx, model.Artifact{
		RunID: run.ID, Path: "model.pt", URI: "file://artifacts/c", ContentType: "application/x-pytorch", UploadedAt: now.Add(time.Minute),
	}))

	got, err := store.GetArtifact(ctx, run.ID, "model.pt")
	require.NoError(t, err)
	assert.Equal(t, "file://artifacts/c", got.URI)
	assert.Equal(t, "application/x-pytorch", got.ContentType)

	all, err := store.ListArtifacts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "model.pt", all[0].Path)
	assert.Equal(t, "plots/loss.png", all[1].Path)

	_, err = store.GetArtifact(ctx, run.ID, "missing.bin")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExperimentListNewestFirst(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	time.Sleep(2 * time.Millisecond)
	a, err := store.CreateExperiment(ctx, "a")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := store.CreateExperiment(ctx, "b")
	require.NoError(t, err)

	all, err := store.ListExperiments(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 3)
	assert.Equal(t, b.ID, all[0].ID)
	assert.Equal(t, a.ID, all[1].ID)
	// The seeded Default experiment predates everything created here.
	assert.Equal(t, model.DefaultExperimentID, all[len(all)-1].ID)
}
