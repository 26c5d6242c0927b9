package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpansAreSafeWithoutSDK(t *testing.T) {
	ctx, pass := StartPassSpan(t.Context(), "p1")
	ctx, group := StartGroupSpan(ctx, "a.md", 2)
	_, exec := StartExecuteSpan(ctx, "sage", 7, 1)

	assert.NotPanics(t, func() {
		EndSpan(exec, errors.New("boom"))
		EndSpan(group, nil)
		EndSpan(pass, nil)
		EndSpan(nil, nil)
	})
}
