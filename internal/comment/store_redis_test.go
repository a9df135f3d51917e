// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/quill/pkg/pointer"
)

// countingRepository counts top-level reads reaching the underlying store.
type countingRepository struct {
	Repository
	listCalls int
}

func (repository *countingRepository) ListTopLevel(ctx context.Context, novelRef string, limit, offset int) ([]*Comment, int, error) {
	repository.listCalls++
	return repository.Repository.ListTopLevel(ctx, novelRef, limit, offset)
}

func newCachedTestRepository(t *testing.T) (Repository, *countingRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingRepository{Repository: NewMemoryRepository()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCachedRepository(inner, client, time.Minute, logger), inner, mr
}

/*
TestCachedRepository_ServesRepeatReads verifies the cache-aside hit path.
*/
func TestCachedRepository_ServesRepeatReads(t *testing.T) {
	cached, inner, _ := newCachedTestRepository(t)
	ctx := context.Background()

	require.NoError(t, cached.Create(ctx, &Comment{ID: "c1", NovelRef: "N1", Author: Author{ID: "u1"}, Content: "hello"}))

	first, total, err := cached.ListTopLevel(ctx, "N1", 20, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, total)

	second, _, err := cached.ListTopLevel(ctx, "N1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.listCalls, "second read is served from redis")
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Content, second[0].Content)
	assert.Nil(t, second[0].ParentRef)
}

/*
TestCachedRepository_WritesInvalidate checks that each write kind bumps the novel version.
*/
func TestCachedRepository_WritesInvalidate(t *testing.T) {
	cached, inner, mr := newCachedTestRepository(t)
	ctx := context.Background()

	require.NoError(t, cached.Create(ctx, &Comment{ID: "c1", NovelRef: "N1", Author: Author{ID: "u1"}, Content: "hello"}))
	_, _, err := cached.ListTopLevel(ctx, "N1", 20, 0)
	require.NoError(t, err)

	// A reply changes the root's reply count, so it must invalidate too.
	require.NoError(t, cached.Create(ctx, &Comment{ID: "c2", NovelRef: "N1", ParentRef: pointer.To("c1"), Author: Author{ID: "u2"}, Content: "reply"}))
	roots, _, err := cached.ListTopLevel(ctx, "N1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.listCalls)
	assert.Equal(t, 1, roots[0].ReplyCount)

	_, err = cached.UpdateContent(ctx, "c1", "edited")
	require.NoError(t, err)
	roots, _, err = cached.ListTopLevel(ctx, "N1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, "edited", roots[0].Content)

	_, err = cached.SoftDelete(ctx, "c1")
	require.NoError(t, err)
	roots, total, err := cached.ListTopLevel(ctx, "N1", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, roots)
	assert.Equal(t, 0, total)
	assert.Equal(t, 4, inner.listCalls)

	version, err := mr.Get("comments:version:N1")
	require.NoError(t, err)
	assert.Equal(t, "4", version)
}

/*
TestCachedRepository_RedisDown falls through to the store when redis is unreachable.
*/
func TestCachedRepository_RedisDown(t *testing.T) {
	cached, inner, mr := newCachedTestRepository(t)
	ctx := context.Background()

	require.NoError(t, cached.Create(ctx, &Comment{ID: "c1", NovelRef: "N1", Author: Author{ID: "u1"}, Content: "hello"}))
	mr.Close()

	roots, _, err := cached.ListTopLevel(ctx, "N1", 20, 0)
	require.NoError(t, err)
	assert.Len(t, roots, 1)
	assert.Equal(t, 1, inner.listCalls)

	require.NoError(t, cached.Create(ctx, &Comment{ID: "c2", NovelRef: "N1", Author: Author{ID: "u1"}, Content: "still works"}))
}
