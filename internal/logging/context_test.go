package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetCorrelationID(ctx))

	ctx = WithCorrelationID(ctx, "cid")
	assert.Equal(t, "cid", GetCorrelationID(ctx))
	assert.Equal(t, ctx, EnsureCorrelationID(ctx))

	fresh := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, GetCorrelationID(fresh))
	assert.NotEqual(t, GenerateCorrelationID(), GenerateCorrelationID())
}
