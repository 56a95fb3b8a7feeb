package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerProvider_WithoutExporter(t *testing.T) {
	tp, err := InitTracerProvider("inventory-test", "")
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	assert.NotEmpty(t, GetTraceIDFromContext(ctx))
	assert.Empty(t, GetTraceIDFromContext(context.Background()))
}
