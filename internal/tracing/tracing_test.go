package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupWriterExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := setupWriter(&buf)
	require.NoError(t, err)

	_, span := otel.Tracer("docsage/test").Start(context.Background(), "unit")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "unit"`)
}

func TestSetupModes(t *testing.T) {
	shutdown, err := Setup("none")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = Setup("jaeger")
	assert.Error(t, err)
}
