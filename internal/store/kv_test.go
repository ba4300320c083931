package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) *KV {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "state", "rubyenvd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewKV(db)
}

func TestKVGetSetDelete(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)

	_, err := kv.Get(ctx, "selected-ruby-path")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, kv.Set(ctx, "selected-ruby-path", "/usr/bin/ruby"))
	got, err := kv.Get(ctx, "selected-ruby-path")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/ruby", got)

	// Overwrite.
	require.NoError(t, kv.Set(ctx, "selected-ruby-path", "/opt/ruby/bin/ruby"))
	got, err = kv.Get(ctx, "selected-ruby-path")
	require.NoError(t, err)
	assert.Equal(t, "/opt/ruby/bin/ruby", got)

	require.NoError(t, kv.Delete(ctx, "selected-ruby-path"))
	_, err = kv.Get(ctx, "selected-ruby-path")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Deleting an absent key is fine.
	require.NoError(t, kv.Delete(ctx, "selected-ruby-path"))
}

func TestKVKeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)

	require.NoError(t, kv.Set(ctx, "selected-ruby-path:aaaa", "/rubies/a/bin/ruby"))
	require.NoError(t, kv.Set(ctx, "selected-ruby-path:bbbb", "/rubies/b/bin/ruby"))

	a, err := kv.Get(ctx, "selected-ruby-path:aaaa")
	require.NoError(t, err)
	b, err := kv.Get(ctx, "selected-ruby-path:bbbb")
	require.NoError(t, err)
	assert.Equal(t, "/rubies/a/bin/ruby", a)
	assert.Equal(t, "/rubies/b/bin/ruby", b)

	require.NoError(t, kv.Delete(ctx, "selected-ruby-path:aaaa"))
	b, err = kv.Get(ctx, "selected-ruby-path:bbbb")
	require.NoError(t, err)
	assert.Equal(t, "/rubies/b/bin/ruby", b, "deleting one workspace's override must not touch another's")
}

func TestKVRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	kv := newTestKV(t)

	_, err := kv.Get(ctx, "")
	assert.Error(t, err)
	assert.Error(t, kv.Set(ctx, "", "x"))
	assert.Error(t, kv.Delete(ctx, ""))
}
