// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/constants"
	"github.com/taibuivan/quill/pkg/pagination"
)

// BranchState is the expansion state of one comment's replies.
type BranchState int

const (
	// NotExpanded means replies were never loaded, or the last load failed.
	NotExpanded BranchState = iota
	// Expanding means a reply fetch is in flight.
	Expanding
	// Expanded means replies are loaded. Collapsing keeps this state.
	Expanded
)

func (s BranchState) String() string {
	switch s {
	case NotExpanded:
		return "not_expanded"
	case Expanding:
		return "expanding"
	case Expanded:
		return "expanded"
	}
	return fmt.Sprintf("BranchState(%d)", int(s))
}

// node is one arena slot. parent is the structural parent in the forest,
// which differs from comment.ParentRef once a reply has been promoted.
type node struct {
	comment   Comment
	parent    string
	state     BranchState
	collapsed bool
	err       error
}

// View is a read-only snapshot of one comment and its visible replies.
type View struct {
	Comment
	State     BranchState
	Collapsed bool
	// Err is the last failed expansion, kept for an inline retry affordance.
	Err error
	// Replies holds loaded replies; it is empty while collapsed.
	Replies []View
	// LoadedReplies counts loaded replies, including hidden ones while collapsed.
	LoadedReplies int
}

// # Forest

/*
Forest is the in-memory comment tree of one novel view.

# Layout

Nodes live in an arena keyed by id. Loaded reply lists are kept in a separate
map from parent id to ordered child ids; a missing entry means "not loaded".
Every level is ordered newest first and no deleted comment is ever stored.

# Concurrency

Methods are safe for concurrent use. Gateway calls run outside the lock;
concurrent expansions of the same node share one request.
*/
type Forest struct {
	novelRef   string
	gateway    Gateway
	replyDepth int
	logger     *slog.Logger

	mu       sync.Mutex
	nodes    map[string]*node
	children map[string][]string
	roots    []string
	page     pagination.Meta

	expansions singleflight.Group
}

// ForestOption customises a [Forest].
type ForestOption func(*Forest)

// WithReplyDepth sets how many levels one expansion asks for.
func WithReplyDepth(depth int) ForestOption {
	return func(forest *Forest) {
		if depth > 0 {
			forest.replyDepth = depth
		}
	}
}

// WithForestLogger sets the logger for expansion diagnostics.
func WithForestLogger(logger *slog.Logger) ForestOption {
	return func(forest *Forest) { forest.logger = logger }
}

// NewForest creates an empty forest for novelRef.
func NewForest(novelRef string, gateway Gateway, opts ...ForestOption) *Forest {
	forest := &Forest{
		novelRef:   novelRef,
		gateway:    gateway,
		replyDepth: constants.DefaultReplyDepth,
		logger:     slog.Default(),
		nodes:      make(map[string]*node),
		children:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(forest)
	}
	return forest
}

// NovelRef returns the novel this forest displays.
func (forest *Forest) NovelRef() string {
	return forest.novelRef
}

// # Pages

/*
AssemblePage replaces the forest with one page of top-level comments.

Deleted comments are stripped at every level the payload carries. Items that
arrive with replies become Expanded branches. On a malformed payload the
forest is left untouched.
*/
func (forest *Forest) AssemblePage(page Page) error {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	// The previous page is discarded, so ids it held may appear again.
	replacing := func(string) bool { return true }
	if err := forest.checkLocked("", forest.novelRef, page.Items, replacing); err != nil {
		return err
	}

	items := StripDeleted(page.Items)
	stage := newStage()
	stage.add("", items)

	forest.nodes = make(map[string]*node)
	forest.children = make(map[string][]string)
	forest.roots = stage.topIDs(items)
	forest.commitLocked(stage)
	forest.page = page.Pagination
	return nil
}

/*
AppendPage adds a later page after the current roots.

Items whose id is already present are skipped, which absorbs page boundaries
that shift under concurrent inserts.
*/
func (forest *Forest) AppendPage(page Page) error {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	fresh := make([]Node, 0, len(page.Items))
	for _, item := range page.Items {
		if _, present := forest.nodes[item.ID]; present {
			continue
		}
		fresh = append(fresh, item)
	}

	noneExisting := func(string) bool { return false }
	if err := forest.checkLocked("", forest.novelRef, fresh, noneExisting); err != nil {
		return err
	}

	fresh = StripDeleted(fresh)
	stage := newStage()
	stage.add("", fresh)

	forest.commitLocked(stage)
	forest.roots = append(forest.roots, stage.topIDs(fresh)...)
	forest.page = page.Pagination
	return nil
}

// Pagination returns the metadata of the last loaded page.
func (forest *Forest) Pagination() pagination.Meta {
	forest.mu.Lock()
	defer forest.mu.Unlock()
	return forest.page
}

// # Expansion

/*
Expand loads the replies of id.

It is a no-op once the branch is Expanded. Calls made while a fetch is in
flight join that fetch instead of issuing another. The fetch is detached from
the caller's cancellation; a caller whose ctx ends stops waiting, and the
result is still applied for everyone else. A failure returns the node to
NotExpanded.
*/
func (forest *Forest) Expand(ctx context.Context, id string) error {
	forest.mu.Lock()
	current, found := forest.nodes[id]
	if !found {
		forest.mu.Unlock()
		return apperr.NotFound("Comment")
	}
	if current.state == Expanded {
		forest.mu.Unlock()
		return nil
	}
	current.state = Expanding
	current.err = nil
	forest.mu.Unlock()

	// Keyed by slot so a reloaded comment never joins a fetch for its predecessor.
	fetchCtx := context.WithoutCancel(ctx)
	results := forest.expansions.DoChan(fmt.Sprintf("%s/%p", id, current), func() (any, error) {
		return nil, forest.fetchReplies(fetchCtx, current)
	})

	select {
	case result := <-results:
		return result.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchReplies performs one expansion; it runs at most once per slot at a time.
func (forest *Forest) fetchReplies(ctx context.Context, target *node) error {
	id := target.comment.ID

	forest.mu.Lock()
	if forest.nodes[id] != target || target.state == Expanded {
		forest.mu.Unlock()
		return nil
	}
	target.state = Expanding
	forest.mu.Unlock()

	replies, err := forest.gateway.ListReplies(ctx, id, ReplyOptions{Recursive: true, Depth: forest.replyDepth})

	forest.mu.Lock()
	defer forest.mu.Unlock()

	// The node may have been deleted (or deleted and reloaded) meanwhile.
	if forest.nodes[id] != target {
		forest.logger.InfoContext(ctx, "stale_replies_discarded", slog.String("comment_id", id))
		return nil
	}

	if err != nil {
		target.state = NotExpanded
		target.err = err
		forest.logger.WarnContext(ctx, "branch_expand_failed",
			slog.String("comment_id", id),
			slog.Any("error", err),
		)
		return err
	}

	if err := forest.attachLocked(target, replies); err != nil {
		target.state = NotExpanded
		target.err = err
		forest.logger.WarnContext(ctx, "branch_expand_rejected",
			slog.String("comment_id", id),
			slog.Any("error", err),
		)
		return err
	}

	target.state = Expanded
	target.collapsed = false
	target.err = nil
	return nil
}

// attachLocked stitches fetched replies under target, keeping replies that
// were inserted locally while the fetch was in flight.
func (forest *Forest) attachLocked(target *node, replies []Node) error {
	id := target.comment.ID
	inSubtree := forest.subtreeLocked(id)

	allowExisting := func(candidate string) bool { return inSubtree[candidate] }
	if err := forest.checkLocked(id, target.comment.NovelRef, replies, allowExisting); err != nil {
		return err
	}

	replies = StripDeleted(replies)
	stage := newStage()
	stage.add(id, replies)

	var kept []string
	for _, childID := range forest.children[id] {
		if _, refetched := stage.nodes[childID]; refetched {
			forest.dropSubtreeLocked(childID)
			continue
		}
		kept = append(kept, childID)
	}

	// Anything else the payload re-sent from a kept local subtree moves to its new place.
	for stagedID := range stage.nodes {
		if _, present := forest.nodes[stagedID]; present {
			forest.detachLocked(stagedID)
		}
	}

	forest.commitLocked(stage)
	forest.children[id] = mergeNewestFirst(stage.topIDs(replies), kept, forest.createdAtLocked)
	return nil
}

// # Local Writes

/*
InsertReply folds a reply that was just created into its parent's branch.

The reply goes first in the parent's list. A NotExpanded parent becomes
Expanded with the reply as its only child, without any fetch. A parent with a
fetch in flight keeps the reply and merges it with the fetched list on arrival.
The parent's reply count grows by one and the branch is shown.
*/
func (forest *Forest) InsertReply(reply Comment) error {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	parent, found := forest.nodes[reply.ParentRef]
	if !found {
		return apperr.NotFound("Parent comment")
	}
	if reply.NovelRef != parent.comment.NovelRef {
		return apperr.MalformedResponse(fmt.Sprintf("Comment %s belongs to another novel", reply.ID))
	}
	if _, exists := forest.nodes[reply.ID]; exists {
		return nil
	}

	forest.nodes[reply.ID] = &node{comment: reply, parent: reply.ParentRef}
	forest.children[reply.ParentRef] = slices.Insert(forest.children[reply.ParentRef], 0, reply.ID)

	if parent.state == NotExpanded {
		parent.state = Expanded
		parent.err = nil
	}
	parent.collapsed = false
	parent.comment.ReplyCount++
	return nil
}

// InsertTopLevel puts a new top-level comment first among the roots.
func (forest *Forest) InsertTopLevel(comment Comment) error {
	if !comment.IsTopLevel() || comment.NovelRef != forest.novelRef {
		return apperr.ValidationError("Comment does not belong at the top level of this novel")
	}

	forest.mu.Lock()
	defer forest.mu.Unlock()

	if _, exists := forest.nodes[comment.ID]; exists {
		return nil
	}
	forest.nodes[comment.ID] = &node{comment: comment}
	forest.roots = slices.Insert(forest.roots, 0, comment.ID)
	return nil
}

// ApplyEdit replaces the content of id in place. Nothing else changes.
func (forest *Forest) ApplyEdit(id, content string) error {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	current, found := forest.nodes[id]
	if !found {
		return apperr.NotFound("Comment")
	}
	current.comment.Content = content
	return nil
}

/*
ApplyDelete removes id from the forest.

Its loaded replies are promoted into the slot's level, merged newest first,
and keep their own subtrees. Replies that were never loaded go with it. The
structural parent's reply count drops by one. Removing an absent id is a no-op.
*/
func (forest *Forest) ApplyDelete(id string) {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	current, found := forest.nodes[id]
	if !found {
		return
	}

	promoted := forest.children[id]
	for _, childID := range promoted {
		forest.nodes[childID].parent = current.parent
	}

	level := slices.DeleteFunc(slices.Clone(forest.levelLocked(current.parent)), func(sibling string) bool {
		return sibling == id
	})
	level = mergeNewestFirst(level, promoted, forest.createdAtLocked)
	forest.setLevelLocked(current.parent, level)

	if parent, ok := forest.nodes[current.parent]; ok && parent.comment.ReplyCount > 0 {
		parent.comment.ReplyCount--
	}

	delete(forest.children, id)
	delete(forest.nodes, id)
}

// SetCollapsed hides or shows an Expanded branch without touching its replies.
func (forest *Forest) SetCollapsed(id string, collapsed bool) error {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	current, found := forest.nodes[id]
	if !found {
		return apperr.NotFound("Comment")
	}
	if current.state != Expanded {
		return apperr.Conflict("Only expanded branches can be collapsed")
	}
	current.collapsed = collapsed
	return nil
}

// # Queries

// Lookup returns the comment and its branch state.
func (forest *Forest) Lookup(id string) (Comment, BranchState, bool) {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	current, found := forest.nodes[id]
	if !found {
		return Comment{}, NotExpanded, false
	}
	return current.comment, current.state, true
}

// IsCollapsed reports whether id is an Expanded branch hidden by the actor.
func (forest *Forest) IsCollapsed(id string) bool {
	forest.mu.Lock()
	defer forest.mu.Unlock()

	current, found := forest.nodes[id]
	return found && current.collapsed
}

// Len returns the number of comments held.
func (forest *Forest) Len() int {
	forest.mu.Lock()
	defer forest.mu.Unlock()
	return len(forest.nodes)
}

// RootIDs returns the top-level ids in display order.
func (forest *Forest) RootIDs() []string {
	forest.mu.Lock()
	defer forest.mu.Unlock()
	return slices.Clone(forest.roots)
}

// ChildIDs returns the loaded reply ids of id, or nil when none are loaded.
func (forest *Forest) ChildIDs(id string) []string {
	forest.mu.Lock()
	defer forest.mu.Unlock()
	return slices.Clone(forest.children[id])
}

// Snapshot returns a deep copy of the visible forest for rendering.
func (forest *Forest) Snapshot() []View {
	forest.mu.Lock()
	defer forest.mu.Unlock()
	return forest.viewsLocked(forest.roots)
}

func (forest *Forest) viewsLocked(ids []string) []View {
	views := make([]View, 0, len(ids))
	for _, id := range ids {
		current := forest.nodes[id]
		view := View{
			Comment:       current.comment,
			State:         current.state,
			Collapsed:     current.collapsed,
			Err:           current.err,
			LoadedReplies: len(forest.children[id]),
		}
		if !current.collapsed {
			view.Replies = forest.viewsLocked(forest.children[id])
		}
		views = append(views, view)
	}
	return views
}

// # Arena Helpers

// stage holds validated nodes before they are committed to the arena.
type stage struct {
	nodes    map[string]*node
	children map[string][]string
}

func newStage() *stage {
	return &stage{nodes: make(map[string]*node), children: make(map[string][]string)}
}

func (s *stage) topIDs(items []Node) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// add copies items into s as the children of parentID.
func (s *stage) add(parentID string, items []Node) {
	for _, item := range items {
		staged := &node{comment: item.Comment, parent: parentID}
		s.nodes[item.ID] = staged

		if item.Loaded {
			staged.state = Expanded
			s.children[item.ID] = s.topIDs(item.Replies)
			s.add(item.ID, item.Replies)
		}
	}
}

/*
checkLocked validates a payload nested under parentID, deleted comments included.

Rejected payloads: an id seen twice, an id that is its own ancestor, an id
already elsewhere in the forest, a reply whose parentRef is not the comment it
is nested under, and a reply whose novel differs from its parent's.
*/
func (forest *Forest) checkLocked(parentID, novelRef string, items []Node, allowExisting func(string) bool) error {
	ancestors := map[string]bool{}
	if parentID != "" {
		ancestors[parentID] = true
	}
	return forest.checkLevelLocked(parentID, novelRef, items, allowExisting, map[string]bool{}, ancestors)
}

func (forest *Forest) checkLevelLocked(parentID, novelRef string, items []Node, allowExisting func(string) bool, seen, ancestors map[string]bool) error {
	for _, item := range items {
		switch {
		case item.ID == "":
			return apperr.MalformedResponse("Comment without id")
		case ancestors[item.ID]:
			return apperr.MalformedResponse(fmt.Sprintf("Comment %s is its own ancestor", item.ID))
		case seen[item.ID]:
			return apperr.MalformedResponse(fmt.Sprintf("Comment %s appears twice", item.ID))
		case forest.nodes[item.ID] != nil && !allowExisting(item.ID):
			return apperr.MalformedResponse(fmt.Sprintf("Comment %s is already in the thread", item.ID))
		case item.ParentRef != parentID:
			return apperr.MalformedResponse(fmt.Sprintf("Comment %s is nested under the wrong parent", item.ID))
		case item.NovelRef != novelRef:
			return apperr.MalformedResponse(fmt.Sprintf("Comment %s belongs to another novel", item.ID))
		}
		seen[item.ID] = true

		if !item.Loaded {
			continue
		}
		ancestors[item.ID] = true
		err := forest.checkLevelLocked(item.ID, item.NovelRef, item.Replies, allowExisting, seen, ancestors)
		delete(ancestors, item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (forest *Forest) commitLocked(s *stage) {
	for id, staged := range s.nodes {
		forest.nodes[id] = staged
	}
	for id, childIDs := range s.children {
		forest.children[id] = childIDs
	}
}

// subtreeLocked returns the ids strictly below id.
func (forest *Forest) subtreeLocked(id string) map[string]bool {
	below := make(map[string]bool)
	stack := slices.Clone(forest.children[id])
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		below[current] = true
		stack = append(stack, forest.children[current]...)
	}
	return below
}

// dropSubtreeLocked deletes id and everything below it from the arena.
func (forest *Forest) dropSubtreeLocked(id string) {
	for below := range forest.subtreeLocked(id) {
		delete(forest.nodes, below)
		delete(forest.children, below)
	}
	delete(forest.nodes, id)
	delete(forest.children, id)
}

// detachLocked removes id and its subtree from wherever it currently sits.
func (forest *Forest) detachLocked(id string) {
	current, found := forest.nodes[id]
	if !found {
		return
	}
	level := slices.DeleteFunc(slices.Clone(forest.levelLocked(current.parent)), func(sibling string) bool {
		return sibling == id
	})
	forest.setLevelLocked(current.parent, level)
	forest.dropSubtreeLocked(id)
}

func (forest *Forest) levelLocked(parentID string) []string {
	if parentID == "" {
		return forest.roots
	}
	return forest.children[parentID]
}

func (forest *Forest) setLevelLocked(parentID string, level []string) {
	if parentID == "" {
		forest.roots = level
		return
	}
	forest.children[parentID] = level
}

func (forest *Forest) createdAtLocked(id string) time.Time {
	if current, found := forest.nodes[id]; found {
		return current.comment.CreatedAt
	}
	return time.Time{}
}
