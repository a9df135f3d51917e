// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import "context"

// Repository defines the data access contract for comments.
//
// # Architecture
//
// The interface lives in the domain package because the service layer (the
// consumer) defines what it needs. Implementations never assemble trees; they
// return flat records and the service nests them.
type Repository interface {

	/*
		ListTopLevel returns live top-level comments of a novel, newest first.

		Returns:
		  - []*Comment: The page of comments
		  - int: Total live top-level comments for the novel
		  - error: Storage failures
	*/
	ListTopLevel(ctx context.Context, novelRef string, limit, offset int) ([]*Comment, int, error)

	/*
		ListDescendants returns every comment below the given parents, down to
		depth levels, newest first within each parent. Deleted comments are
		included so the caller can tombstone them, and their replies are always
		followed: a tombstone does not use up depth.
	*/
	ListDescendants(ctx context.Context, parentIDs []string, depth int) ([]*Comment, error)

	// FindByID returns the comment with the given ID, deleted or not.
	//
	// It returns apperr NOT_FOUND if the row is absent.
	FindByID(ctx context.Context, id string) (*Comment, error)

	/*
		Create persists a new comment.

		For replies the parent's reply count is incremented in the same unit of
		work, and the call fails with NOT_FOUND if the parent is missing or
		deleted at that moment.
	*/
	Create(ctx context.Context, comment *Comment) error

	// UpdateContent replaces the body of a live comment and returns the new state.
	UpdateContent(ctx context.Context, id, content string) (*Comment, error)

	/*
		SoftDelete flags a comment as deleted and decrements its parent's reply count.

		Returns:
		  - *Comment: The deleted record
		  - error: NOT_FOUND if missing, ALREADY_DELETED on a second call
	*/
	SoftDelete(ctx context.Context, id string) (*Comment, error)
}
