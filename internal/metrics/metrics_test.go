package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	fakes "github.com/roach88/n1qlorm/internal/testutil"
)

func TestCollector_QueryFired(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.QueryFired(ctx, engine.QueryEvent{Operation: engine.OpSelect, Success: true, RowCount: 3, Duration: time.Millisecond})
	c.QueryFired(ctx, engine.QueryEvent{Operation: engine.OpSelect, Success: true})
	c.QueryFired(ctx, engine.QueryEvent{Operation: engine.OpKVReplace, Err: dberr.New(dberr.CodeConflict, "stale")})
	c.QueryFired(ctx, engine.QueryEvent{Operation: engine.OpRaw, Err: errors.New("boom")})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("select", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("kv.replace", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("statement", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.RowsTotal.WithLabelValues("select")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.OperationDuration))
}

func TestCollector_AsConnectionListener(t *testing.T) {
	c := New()
	kv := fakes.NewMemoryKV()
	conn, err := engine.New("default", kv, nil, engine.WithListener(c))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Get(context.Background(), "missing")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.OperationsTotal.WithLabelValues("kv.get", "not_found")))
}

func TestHandler(t *testing.T) {
	c := New()
	c.QueryFired(context.Background(), engine.QueryEvent{Operation: engine.OpDelete, Success: true, RowCount: 1})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `n1qlorm_operations_total{operation="delete",status="ok"} 1`)
}
