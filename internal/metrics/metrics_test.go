package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/pkg/schema"
)

func TestCollector_StepFinished(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	ctx := context.Background()

	c.StepFinished(ctx, engine.StepEvent{Name: "a", Type: schema.ActionTypePiece, Status: schema.StepStatusSucceeded, Duration: 20 * time.Millisecond})
	c.StepFinished(ctx, engine.StepEvent{Name: "b", Type: schema.ActionTypePiece, Status: schema.StepStatusSucceeded})
	c.StepFinished(ctx, engine.StepEvent{Name: "c", Type: schema.ActionTypeStorage, Status: schema.StepStatusFailed, Code: schema.ErrCodeStorage})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.steps.WithLabelValues("PIECE", "SUCCEEDED", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("STORAGE", "FAILED", schema.ErrCodeStorage)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.stepDuration))
}

func TestCollector_RunFinished(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	c.RunFinished(context.Background(), &schema.RunResult{FlowName: "orders", Status: schema.StepStatusFailed, DurationMs: 1500})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("orders", "FAILED")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	c.RunFinished(context.Background(), &schema.RunResult{FlowName: "orders", Status: schema.StepStatusSucceeded})

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `stepflow_runs_total{flow="orders",status="SUCCEEDED"} 1`)
}
