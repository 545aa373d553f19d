package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMessageLock(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalMessageLock()

	owner, ok, err := lock.Acquire(ctx, "<m1@example.com>")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, owner)

	_, ok, err = lock.Acquire(ctx, "<m1@example.com>")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = lock.Acquire(ctx, "<m2@example.com>")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx, "<m1@example.com>", "someone-else"))
	_, ok, _ = lock.Acquire(ctx, "<m1@example.com>")
	assert.False(t, ok, "foreign owner must not free the lock")

	require.NoError(t, lock.Release(ctx, "<m1@example.com>", owner))
	_, ok, err = lock.Acquire(ctx, "<m1@example.com>")
	require.NoError(t, err)
	assert.True(t, ok)
}
