package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashades/converge/internal/model"
)

func TestStepFinishedCountsByStatusAndKind(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.StepFinished(model.StepResult{Status: model.StatusApplied, Kind: "file", Duration: time.Second}, 0, 3)
	r.StepFinished(model.StepResult{Status: model.StatusSkipped, Kind: "file"}, 1, 3)
	r.StepFinished(model.StepResult{Status: model.StatusApplied, Kind: "file"}, 2, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps.WithLabelValues(model.StatusApplied, "file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.steps.WithLabelValues(model.StatusSkipped, "file")))
}

func TestObserveRun(t *testing.T) {
	t.Parallel()

	finished := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		report      *model.RunReport
		wantFailed  float64
		wantSuccess float64
	}{
		{
			name:        "clean run stamps last success",
			report:      &model.RunReport{Recipe: "nfs-deploy", Started: finished.Add(-time.Minute), Finished: finished},
			wantSuccess: float64(finished.Unix()),
		},
		{
			name:       "halted run",
			report:     &model.RunReport{Recipe: "nfs-deploy", Started: finished, Finished: finished, Err: errors.New("boom")},
			wantFailed: 1,
		},
		{
			name:   "dry run leaves last success alone",
			report: &model.RunReport{Recipe: "nfs-deploy", DryRun: true, Started: finished, Finished: finished},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRecorder()
			r.ObserveRun(tt.report)
			assert.Equal(t, tt.wantFailed, testutil.ToFloat64(r.runFailed.WithLabelValues("nfs-deploy")))
			assert.Equal(t, tt.wantSuccess, testutil.ToFloat64(r.lastSuccess.WithLabelValues("nfs-deploy")))
		})
	}
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.StepFinished(model.StepResult{Status: model.StatusApplied, Kind: "service"}, 0, 1)

	path := filepath.Join(t.TempDir(), "textfile", "converge.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `converge_steps_total{kind="service",status="applied"} 1`)
}

func TestWriteTextfileWithoutPathIsNoop(t *testing.T) {
	t.Parallel()
	require.NoError(t, NewRecorder().WriteTextfile(""))
}
