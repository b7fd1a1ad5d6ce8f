package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndShutdown(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx)
	require.NoError(t, err)

	r.StmtExecuted(ctx)
	r.StmtBlocked(ctx)
	r.StmtSkipped(ctx)
	r.AnomalyFound(ctx, "G1c")

	_, span := r.Span(ctx, "generate")
	span.End()

	require.NoError(t, r.Shutdown(ctx))
}
