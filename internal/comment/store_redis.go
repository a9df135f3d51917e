// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/quill/internal/platform/constants"
)

// # Redis Cache Decorator

// cachedRepository serves top-level pages from Redis and delegates everything
// else to the wrapped [Repository].
//
// Keys embed a per-novel version. Every write touching a novel increments the
// version, so old pages become unreachable at once and expire through their TTL.
// Cache failures are logged and never fail the request.
type cachedRepository struct {
	Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// cachedPage is the JSON document stored per page key.
type cachedPage struct {
	Items []*Comment `json:"items"`
	Total int        `json:"total"`
}

// NewCachedRepository wraps next with a Redis page cache.
func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) Repository {
	return &cachedRepository{Repository: next, client: client, ttl: ttl, logger: logger}
}

func (repository *cachedRepository) ListTopLevel(ctx context.Context, novelRef string, limit, offset int) ([]*Comment, int, error) {
	key, err := repository.pageKey(ctx, novelRef, limit, offset)
	if err != nil {
		repository.logger.WarnContext(ctx, "comment_cache_unavailable", slog.Any("error", err))
		return repository.Repository.ListTopLevel(ctx, novelRef, limit, offset)
	}

	var page cachedPage
	found, err := repository.getJSON(ctx, key, &page)
	if err != nil {
		repository.logger.WarnContext(ctx, "comment_cache_read_failed", slog.String("key", key), slog.Any("error", err))
	}
	if found {
		return page.Items, page.Total, nil
	}

	items, total, err := repository.Repository.ListTopLevel(ctx, novelRef, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	if err := repository.setJSON(ctx, key, cachedPage{Items: items, Total: total}); err != nil {
		repository.logger.WarnContext(ctx, "comment_cache_write_failed", slog.String("key", key), slog.Any("error", err))
	}
	return items, total, nil
}

func (repository *cachedRepository) Create(ctx context.Context, comment *Comment) error {
	if err := repository.Repository.Create(ctx, comment); err != nil {
		return err
	}
	repository.invalidate(ctx, comment.NovelRef)
	return nil
}

func (repository *cachedRepository) UpdateContent(ctx context.Context, id, content string) (*Comment, error) {
	updated, err := repository.Repository.UpdateContent(ctx, id, content)
	if err != nil {
		return nil, err
	}
	repository.invalidate(ctx, updated.NovelRef)
	return updated, nil
}

func (repository *cachedRepository) SoftDelete(ctx context.Context, id string) (*Comment, error) {
	deleted, err := repository.Repository.SoftDelete(ctx, id)
	if err != nil {
		return nil, err
	}
	repository.invalidate(ctx, deleted.NovelRef)
	return deleted, nil
}

// # Cache Helpers

func (repository *cachedRepository) pageKey(ctx context.Context, novelRef string, limit, offset int) (string, error) {
	version, err := repository.client.Get(ctx, constants.RedisPrefixCommentVersion+novelRef).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s%s:v%d:%d:%d", constants.RedisPrefixCommentPage, novelRef, version, limit, offset), nil
}

func (repository *cachedRepository) invalidate(ctx context.Context, novelRef string) {
	if err := repository.client.Incr(ctx, constants.RedisPrefixCommentVersion+novelRef).Err(); err != nil {
		repository.logger.WarnContext(ctx, "comment_cache_invalidate_failed",
			slog.String("novel_ref", novelRef),
			slog.Any("error", err),
		)
	}
}

// getJSON returns (true, nil) on a hit and (false, nil) on a miss.
func (repository *cachedRepository) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := repository.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (repository *cachedRepository) setJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return repository.client.Set(ctx, key, raw, repository.ttl).Err()
}
