// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package comment is the comment store: the persisted side of novel discussion threads.

Comments are flat records that reference their parent. There is no materialised
tree in storage; the service assembles nested replies on demand, up to a bounded
depth, and clients fetch deeper levels lazily.

# Layout

  - comment.go: entity and inputs.
  - store.go: [Repository] contract, implemented by PostgreSQL, memory and a Redis cache decorator.
  - service.go: business rules (ownership, liveness, novel inheritance, tombstones).
  - http.go: chi routes under /api/v1/comments.
*/
package comment

import (
	"time"

	"github.com/taibuivan/quill/pkg/pointer"
)

// Author is the public projection of the account that wrote a comment.
//
// Username is empty when the account record could not be resolved.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Comment is a single node of a novel's discussion.
type Comment struct {
	ID         string    `json:"id"`
	NovelRef   string    `json:"novelRef"`
	ParentRef  *string   `json:"parentRef"`
	Author     Author    `json:"author"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	IsDeleted  bool      `json:"isDeleted"`
	ReplyCount int       `json:"replyCount"`

	// Replies is nil when the level was not loaded and non-nil (possibly empty)
	// when it was. It is never persisted.
	Replies []*Comment `json:"replies,omitzero"`
}

// IsTopLevel reports whether the comment is attached directly to a novel.
func (c *Comment) IsTopLevel() bool {
	return c.ParentRef == nil
}

// Clone returns a shallow copy without the assembled replies.
func (c *Comment) Clone() *Comment {
	clone := *c
	if c.ParentRef != nil {
		clone.ParentRef = pointer.To(*c.ParentRef)
	}
	clone.Replies = nil
	return &clone
}

// Tombstone blanks everything a reader must not see of a deleted comment,
// keeping only the structural fields its replies depend on.
func (c *Comment) Tombstone() {
	c.Content = ""
	c.Author = Author{}
}

// CreateInput carries a new comment from the transport layer.
type CreateInput struct {
	Content   string `json:"content"`
	NovelRef  string `json:"novelRef"`
	ParentRef string `json:"parentRef,omitempty"`
}

// UpdateInput carries an edit. Only the body of a comment is mutable.
type UpdateInput struct {
	Content string `json:"content"`
}

// TreeOptions controls how many levels of replies are nested into a listing.
type TreeOptions struct {
	// Populate nests replies under each returned comment.
	Populate bool
	// Depth is the number of reply levels to nest; zero means the default.
	Depth int
}
