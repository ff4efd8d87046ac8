package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashades/converge/internal/model"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func report(id, recipe string, started time.Time, statuses ...string) *model.RunReport {
	r := &model.RunReport{
		RunID:    id,
		Recipe:   recipe,
		Started:  started,
		Finished: started.Add(2 * time.Second),
	}
	for i, status := range statuses {
		step := model.StepResult{
			StepID:    recipe + "-step-" + string(rune('a'+i)),
			Kind:      "shell",
			Status:    status,
			Message:   "ok",
			Duration:  150 * time.Millisecond,
			Timestamp: started.Add(time.Second),
		}
		if status == model.StatusFailed {
			step.Error = errors.New("exit status 1")
			r.Err = step.Error
		}
		r.Steps = append(r.Steps, step)
	}
	return r
}

func TestOpenIsRepeatable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	first, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, path, second.Path())
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", nil)
	require.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, report("run-1", "nfs-deploy", base, model.StatusApplied, model.StatusSkipped)))
	require.NoError(t, j.Record(ctx, report("run-2", "deploy-exts", base.Add(time.Hour), model.StatusSkipped, model.StatusFailed)))

	runs, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Equal(t, "exit status 1", runs[0].Error)

	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, 1, runs[1].Applied)
	assert.Equal(t, 2*time.Second, runs[1].Duration())
	assert.True(t, runs[1].Started.Equal(base))
}

func TestRecentFiltersByRecipe(t *testing.T) {
	t.Parallel()

	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, recipe := range []string{"nfs-deploy", "httpd-shutdown", "nfs-deploy"} {
		id := "run-" + string(rune('0'+i))
		require.NoError(t, j.Record(ctx, report(id, recipe, base.Add(time.Duration(i)*time.Minute), model.StatusSkipped)))
	}

	runs, err := j.Recent(ctx, "nfs-deploy", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, "nfs-deploy", run.Recipe)
	}

	limited, err := j.Recent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].RunID)
}

func TestStepsKeepExecutionOrder(t *testing.T) {
	t.Parallel()

	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rep := report("run-1", "httpd-shutdown", base, model.StatusApplied, model.StatusFailed)
	require.NoError(t, j.Record(ctx, rep))

	steps, err := j.Steps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, rep.Steps[0].StepID, steps[0].StepID)
	assert.Equal(t, model.StatusFailed, steps[1].Status)
	assert.EqualError(t, steps[1].Error, "exit status 1")
	assert.Equal(t, 150*time.Millisecond, steps[0].Duration)
}

func TestRecordRejectsDuplicateRun(t *testing.T) {
	t.Parallel()

	j := openJournal(t)
	ctx := context.Background()
	rep := report("run-1", "nfs-deploy", time.Now(), model.StatusSkipped)

	require.NoError(t, j.Record(ctx, rep))
	require.Error(t, j.Record(ctx, rep))

	runs, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
