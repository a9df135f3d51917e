// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package thread is the reader-side engine for a novel's comment threads.

A view fetches one page of top-level comments, expands branches lazily and
folds its own writes back in without re-fetching the tree.

# Components

  - [Gateway]: the comment store contract; [HTTPGateway] speaks the REST API and
    normalises its loosely shaped payloads into strict [Comment] values.
  - [Forest]: the in-memory tree. It filters deleted comments, coalesces expansions,
    discards stale responses and keeps every level newest first.
  - [Controller]: turns actor intents into Gateway calls and Forest mutations,
    applying the authentication and ownership rules.
  - [Render]: a plain text dump of a [Forest] snapshot.
*/
package thread

import (
	"time"

	"github.com/taibuivan/quill/internal/platform/constants"
	"github.com/taibuivan/quill/pkg/pagination"
)

// Comment is the strict client-side shape of a stored comment.
type Comment struct {
	ID        string
	NovelRef  string
	ParentRef string // empty for top-level comments
	AuthorRef string
	// AuthorName is empty when the author could not be resolved.
	AuthorName string
	Content    string
	CreatedAt  time.Time
	IsDeleted  bool
	// ReplyCount is a hint for the "show replies" affordance, not ground truth.
	ReplyCount int
}

// IsTopLevel reports whether the comment has no parent.
func (c Comment) IsTopLevel() bool {
	return c.ParentRef == ""
}

// DisplayAuthor returns the author's name or the anonymous placeholder.
func (c Comment) DisplayAuthor() string {
	if c.AuthorName == "" {
		return constants.AnonymousAuthor
	}
	return c.AuthorName
}

// Node is a comment together with replies the store chose to send along.
//
// Loaded distinguishes "replies not fetched" (false) from "fetched, none
// visible" (true with an empty Replies).
type Node struct {
	Comment
	Replies []Node
	Loaded  bool
}

// Page is one page of top-level comments.
type Page struct {
	Items      []Node
	Pagination pagination.Meta
}

// ReplyOptions controls a reply listing.
type ReplyOptions struct {
	Recursive bool
	// Depth bounds nesting when Recursive is set. The store may cap it.
	Depth int
}

// CreateInput is a new comment or reply.
type CreateInput struct {
	Content   string
	NovelRef  string
	ParentRef string
}

/*
StripDeleted removes deleted comments from every level present in nodes.

A deleted comment with loaded replies is replaced by its surviving replies,
merged into its own level newest first; the siblings keep their relative order.
Replies that were never loaded under a deleted comment are dropped with it.
*/
func StripDeleted(nodes []Node) []Node {
	visible := make([]Node, 0, len(nodes))
	var promoted []Node

	for _, node := range nodes {
		if node.Loaded {
			node.Replies = StripDeleted(node.Replies)
		}
		if node.IsDeleted {
			promoted = mergeNewestFirst(promoted, node.Replies, nodeCreatedAt)
			continue
		}
		visible = append(visible, node)
	}

	if len(promoted) == 0 {
		return visible
	}
	return mergeNewestFirst(visible, promoted, nodeCreatedAt)
}

func nodeCreatedAt(node Node) time.Time {
	return node.CreatedAt
}

// mergeNewestFirst merges two newest-first sequences. On equal timestamps
// elements of a come first, and each input keeps its internal order.
func mergeNewestFirst[T any](a, b []T, createdAt func(T) time.Time) []T {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}

	merged := make([]T, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if createdAt(b[j]).After(createdAt(a[i])) {
			merged = append(merged, b[j])
			j++
		} else {
			merged = append(merged, a[i])
			i++
		}
	}
	merged = append(merged, a[i:]...)
	return append(merged, b[j:]...)
}
