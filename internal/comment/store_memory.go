// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/pkg/slice"
)

// # In-Memory Repository

// MemoryRepository keeps comments in maps keyed by id, with ordered child
// lists per parent and per novel. Used by tests and STORE_DRIVER=memory.
type MemoryRepository struct {
	mu sync.RWMutex

	byID     map[string]*Comment
	children map[string][]string
	roots    map[string][]string
	accounts map[string]string

	now func() time.Time
}

// NewMemoryRepository constructs an empty in-process comment store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[string]*Comment),
		children: make(map[string][]string),
		roots:    make(map[string][]string),
		accounts: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddAccount registers a display name for an author id.
func (repository *MemoryRepository) AddAccount(userID, username string) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	repository.accounts[userID] = username
}

func (repository *MemoryRepository) ListTopLevel(_ context.Context, novelRef string, limit, offset int) ([]*Comment, int, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	live := slice.Filter(repository.lookupLocked(repository.roots[novelRef]), func(stored *Comment) bool {
		return !stored.IsDeleted
	})
	sortNewestFirst(live)

	total := len(live)
	start := min(offset, total)
	end := min(start+limit, total)

	page := make([]*Comment, 0, end-start)
	for _, stored := range live[start:end] {
		page = append(page, repository.projectLocked(stored))
	}
	return page, total, nil
}

func (repository *MemoryRepository) ListDescendants(_ context.Context, parentIDs []string, depth int) ([]*Comment, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	var out []*Comment
	frontier := parentIDs
	for level := 1; len(frontier) > 0; level++ {
		var next []string
		for _, parentID := range frontier {
			kids := repository.lookupLocked(repository.children[parentID])
			sortNewestFirst(kids)
			for _, kid := range kids {
				out = append(out, repository.projectLocked(kid))
				if level < depth || kid.IsDeleted {
					next = append(next, kid.ID)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

func (repository *MemoryRepository) FindByID(_ context.Context, id string) (*Comment, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	stored, found := repository.byID[id]
	if !found {
		return nil, apperr.NotFound("Comment")
	}
	return repository.projectLocked(stored), nil
}

func (repository *MemoryRepository) Create(_ context.Context, comment *Comment) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if _, exists := repository.byID[comment.ID]; exists {
		return apperr.Conflict("Comment already exists")
	}

	if comment.ParentRef != nil {
		parent, found := repository.byID[*comment.ParentRef]
		if !found || parent.IsDeleted {
			return apperr.NotFound("Parent comment")
		}
		parent.ReplyCount++
		repository.children[parent.ID] = append(repository.children[parent.ID], comment.ID)
	} else {
		repository.roots[comment.NovelRef] = append(repository.roots[comment.NovelRef], comment.ID)
	}

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = repository.now()
	}
	comment.UpdatedAt = comment.CreatedAt
	comment.Author.Username = repository.accounts[comment.Author.ID]

	repository.byID[comment.ID] = comment.Clone()
	return nil
}

func (repository *MemoryRepository) UpdateContent(_ context.Context, id, content string) (*Comment, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	stored, found := repository.byID[id]
	if !found || stored.IsDeleted {
		return nil, apperr.NotFound("Comment")
	}

	stored.Content = content
	stored.UpdatedAt = repository.now()
	return repository.projectLocked(stored), nil
}

func (repository *MemoryRepository) SoftDelete(_ context.Context, id string) (*Comment, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	stored, found := repository.byID[id]
	if !found {
		return nil, apperr.NotFound("Comment")
	}
	if stored.IsDeleted {
		return nil, apperr.AlreadyDeleted("Comment")
	}

	stored.IsDeleted = true
	stored.UpdatedAt = repository.now()

	if stored.ParentRef != nil {
		if parent, ok := repository.byID[*stored.ParentRef]; ok && parent.ReplyCount > 0 {
			parent.ReplyCount--
		}
	}
	return repository.projectLocked(stored), nil
}

// projectLocked copies a stored record and resolves the author name.
func (repository *MemoryRepository) projectLocked(stored *Comment) *Comment {
	out := stored.Clone()
	out.Author.Username = repository.accounts[stored.Author.ID]
	return out
}

func (repository *MemoryRepository) lookupLocked(ids []string) []*Comment {
	return slice.Map(ids, func(id string) *Comment { return repository.byID[id] })
}

// sortNewestFirst orders by creation time descending, id descending on ties.
func sortNewestFirst(comments []*Comment) {
	slices.SortStableFunc(comments, func(a, b *Comment) int {
		if cmp := b.CreatedAt.Compare(a.CreatedAt); cmp != 0 {
			return cmp
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
}
