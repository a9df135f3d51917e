// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import "context"

// Gateway is the comment store as seen by the engine.
//
// Errors are *apperr.AppError values: VALIDATION_ERROR, AUTH_REQUIRED,
// UNAUTHORIZED, FORBIDDEN, NOT_FOUND, ALREADY_DELETED, NETWORK_ERROR or
// MALFORMED_RESPONSE.
type Gateway interface {
	// ListTopLevel returns live top-level comments of a novel, newest first.
	// Items may carry pre-fetched replies (Node.Loaded).
	ListTopLevel(ctx context.Context, novelRef string, page, pageSize int) (Page, error)

	// ListReplies returns the direct or nested replies of a comment.
	ListReplies(ctx context.Context, parentRef string, opts ReplyOptions) ([]Node, error)

	// Create stores a new comment and returns it as persisted.
	Create(ctx context.Context, input CreateInput) (Comment, error)

	// Update replaces the content of a comment.
	Update(ctx context.Context, id, content string) (Comment, error)

	// Remove soft-deletes a comment.
	Remove(ctx context.Context, id string) error
}
