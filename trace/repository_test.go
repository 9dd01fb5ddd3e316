package trace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/prompttrace/trace"
)

func TestFileRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := trace.NewFileRepository(filepath.Join(t.TempDir(), "traces"))

	s := trace.NewStore()
	tr := newStoredTrace(t, s, "job")
	span := newStoredSpan(t, s, tr, "step")
	gt.NoError(t, span.Complete("result"))
	gt.NoError(t, tr.Complete("done"))

	g := trace.NewGeneration("gpt-4o",
		trace.WithGenerationSpan(tr.ID, span.ID),
		trace.WithGenerationUsage(10, 5, 15),
	)
	gt.NoError(t, s.PutGeneration(g))

	archive, err := s.Archive(tr.ID)
	gt.NoError(t, err)
	gt.NoError(t, repo.Save(ctx, archive))

	loaded, err := repo.Load(ctx, tr.ID)
	gt.NoError(t, err)

	gt.Equal(t, loaded.Trace.ID, tr.ID)
	gt.Equal(t, loaded.Trace.Status, trace.StatusCompleted)
	gt.Equal(t, loaded.Trace.Output, "done")
	gt.NotNil(t, loaded.Trace.DurationMS)

	gt.A(t, loaded.Spans).Length(1)
	gt.Equal(t, loaded.Spans[0].ID, span.ID)
	gt.Equal(t, loaded.Spans[0].Output, "result")

	gt.A(t, loaded.Generations).Length(1)
	gt.Equal(t, loaded.Generations[0].TotalTokens, 15)
}

func TestFileRepositorySaveLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "traces")
	repo := trace.NewFileRepository(dir)

	tr, err := trace.New("job")
	gt.NoError(t, err)
	gt.NoError(t, repo.Save(context.Background(), &trace.Archive{Trace: tr}))

	// One JSON file per trace id; the directory is created on demand.
	_, statErr := os.Stat(filepath.Join(dir, tr.ID+".json"))
	gt.NoError(t, statErr)
}

func TestFileRepositorySaveRequiresTrace(t *testing.T) {
	repo := trace.NewFileRepository(t.TempDir())

	gt.Error(t, repo.Save(context.Background(), nil))
	gt.Error(t, repo.Save(context.Background(), &trace.Archive{}))
}

func TestFileRepositoryLoadUnknown(t *testing.T) {
	repo := trace.NewFileRepository(t.TempDir())

	_, err := repo.Load(context.Background(), "missing")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, trace.ErrNotFound))
}
