// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"
	"html"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/constants"
	"github.com/taibuivan/quill/internal/platform/validate"
	"github.com/taibuivan/quill/pkg/pagination"
	"github.com/taibuivan/quill/pkg/pointer"
	"github.com/taibuivan/quill/pkg/slice"
	"github.com/taibuivan/quill/pkg/uuid"
)

const (
	FieldContent   = "content"
	FieldNovelRef  = "novelRef"
	FieldParentRef = "parentRef"
)

// # Service Layer

// Service orchestrates the business rules for comments.
type Service struct {
	repository Repository
	policy     *bluemonday.Policy
	logger     *slog.Logger
}

// NewService constructs a new [Service] around a repository.
func NewService(repository Repository, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		policy:     bluemonday.StrictPolicy(),
		logger:     logger,
	}
}

// # Reads

/*
ListNovelComments returns one page of live top-level comments for a novel.

Parameters:
  - ctx: context.Context
  - novelRef: string (Novel identifier)
  - params: pagination.Params
  - opts: TreeOptions (nest replies when Populate is set)

Returns:
  - []*Comment: Newest-first comments, each with its replyCount hint
  - pagination.Meta: Page metadata
  - error: Validation or storage errors
*/
func (service *Service) ListNovelComments(ctx context.Context, novelRef string, params pagination.Params, opts TreeOptions) ([]*Comment, pagination.Meta, error) {
	if err := (&validate.Validator{}).Required(FieldNovelRef, novelRef).Err(); err != nil {
		return nil, pagination.Meta{}, err
	}

	roots, total, err := service.repository.ListTopLevel(ctx, novelRef, params.Limit, params.Offset())
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	if opts.Populate && len(roots) > 0 {
		depth := clampDepth(opts.Depth)
		descendants, err := service.repository.ListDescendants(ctx, ids(roots), depth)
		if err != nil {
			return nil, pagination.Meta{}, err
		}
		attachReplies(roots, descendants, depth)
	}

	return roots, pagination.NewMeta(params.Page, params.Limit, total), nil
}

/*
ListReplies returns the replies of a comment, nested when opts.Populate is set.

Description: A deleted comment is still a valid parent here, since its replies
may be live. Deleted replies that have replies of their own are returned as
tombstones; childless deleted replies are omitted.
*/
func (service *Service) ListReplies(ctx context.Context, parentID string, opts TreeOptions) ([]*Comment, error) {
	if _, err := service.find(ctx, parentID); err != nil {
		return nil, err
	}

	depth := 1
	if opts.Populate {
		depth = clampDepth(opts.Depth)
	}

	descendants, err := service.repository.ListDescendants(ctx, []string{parentID}, depth)
	if err != nil {
		return nil, err
	}

	holder := &Comment{ID: parentID}
	attachReplies([]*Comment{holder}, descendants, depth)
	return holder.Replies, nil
}

// # Writes

/*
CreateComment validates and persists a new top-level comment or reply.

Description: A reply inherits the parent's novel. An explicit novelRef that
disagrees with the parent is rejected rather than silently overwritten.

Returns:
  - *Comment: The created comment with an empty, loaded replies list
  - error: VALIDATION_ERROR, NOT_FOUND (parent missing or deleted) or storage errors
*/
func (service *Service) CreateComment(ctx context.Context, actorID string, input CreateInput) (*Comment, error) {
	content := service.clean(input.Content)

	validator := &validate.Validator{}
	validator.Content(FieldContent, content, constants.CommentMaxLength)
	if input.ParentRef == "" {
		validator.Required(FieldNovelRef, input.NovelRef)
	} else {
		validator.UUID(FieldParentRef, input.ParentRef)
	}
	if err := validator.Err(); err != nil {
		return nil, err
	}

	comment := &Comment{
		ID:       uuid.New(),
		NovelRef: input.NovelRef,
		Author:   Author{ID: actorID},
		Content:  content,
	}

	if input.ParentRef != "" {
		parent, err := service.repository.FindByID(ctx, input.ParentRef)
		if err != nil {
			if apperr.HasCode(err, apperr.CodeNotFound) {
				return nil, apperr.NotFound("Parent comment")
			}
			return nil, err
		}
		if parent.IsDeleted {
			return nil, apperr.NotFound("Parent comment")
		}

		mismatch := input.NovelRef != "" && input.NovelRef != parent.NovelRef
		if err := (&validate.Validator{}).Custom(FieldNovelRef, mismatch, "Must match the parent comment").Err(); err != nil {
			return nil, err
		}

		comment.ParentRef = pointer.To(parent.ID)
		comment.NovelRef = parent.NovelRef
	}

	if err := service.repository.Create(ctx, comment); err != nil {
		return nil, err
	}
	comment.Replies = []*Comment{}

	service.logger.InfoContext(ctx, "comment_created",
		slog.String("comment_id", comment.ID),
		slog.String("novel_ref", comment.NovelRef),
		slog.Bool("is_reply", comment.ParentRef != nil),
	)

	return comment, nil
}

// UpdateComment replaces the content of a comment owned by actorID.
func (service *Service) UpdateComment(ctx context.Context, actorID, id string, input UpdateInput) (*Comment, error) {
	content := service.clean(input.Content)
	if err := (&validate.Validator{}).Content(FieldContent, content, constants.CommentMaxLength).Err(); err != nil {
		return nil, err
	}

	if _, err := service.ownedLive(ctx, actorID, id); err != nil {
		return nil, err
	}

	updated, err := service.repository.UpdateContent(ctx, id, content)
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "comment_updated", slog.String("comment_id", id))
	return updated, nil
}

/*
DeleteComment soft-deletes a comment owned by actorID.

Returns:
  - error: FORBIDDEN for non-authors, ALREADY_DELETED on repeat, NOT_FOUND if missing
*/
func (service *Service) DeleteComment(ctx context.Context, actorID, id string) error {
	existing, err := service.find(ctx, id)
	if err != nil {
		return err
	}
	if existing.Author.ID != actorID {
		return apperr.Forbidden("Only the author may delete this comment")
	}
	if existing.IsDeleted {
		return apperr.AlreadyDeleted("Comment")
	}

	if _, err := service.repository.SoftDelete(ctx, id); err != nil {
		return err
	}

	service.logger.InfoContext(ctx, "comment_deleted",
		slog.String("comment_id", id),
		slog.String("novel_ref", existing.NovelRef),
	)
	return nil
}

// # Internal Helpers

// find loads a comment; ids that cannot exist are reported as missing.
func (service *Service) find(ctx context.Context, id string) (*Comment, error) {
	if (&validate.Validator{}).UUID("id", id).HasErrors() {
		return nil, apperr.NotFound("Comment")
	}
	return service.repository.FindByID(ctx, id)
}

// ownedLive loads a comment and checks it is live and written by actorID.
func (service *Service) ownedLive(ctx context.Context, actorID, id string) (*Comment, error) {
	existing, err := service.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.IsDeleted {
		return nil, apperr.NotFound("Comment")
	}
	if existing.Author.ID != actorID {
		return nil, apperr.Forbidden("Only the author may edit this comment")
	}
	return existing, nil
}

// clean strips markup, then trims and NFC-normalises the remaining text.
//
// Entities are decoded until none remain before sanitising, so encoded markup
// is stripped as well. The result is plain text: the final decode only reverses
// the escaping the policy applies to text, and renderers must escape it for HTML.
func (service *Service) clean(raw string) string {
	for decoded := html.UnescapeString(raw); decoded != raw; decoded = html.UnescapeString(raw) {
		raw = decoded
	}
	text := service.policy.Sanitize(raw)
	return validate.NormalizeText(html.UnescapeString(text))
}

func clampDepth(depth int) int {
	if depth < 1 {
		return constants.DefaultReplyDepth
	}
	return min(depth, constants.MaxReplyDepth)
}

func ids(comments []*Comment) []string {
	return slice.Map(comments, func(comment *Comment) string { return comment.ID })
}

/*
attachReplies nests flat descendants under parents.

Parents sit at level 0. A node at level < depth gets a non-nil Replies slice
(the level below was loaded); a live node at level >= depth keeps nil (not loaded).
Deleted nodes always carry their replies: they become tombstones when any survive
and are dropped otherwise.
*/
func attachReplies(parents []*Comment, descendants []*Comment, depth int) {
	byParent := make(map[string][]*Comment, len(descendants))
	for _, descendant := range descendants {
		if descendant.ParentRef == nil {
			continue
		}
		byParent[*descendant.ParentRef] = append(byParent[*descendant.ParentRef], descendant)
	}

	var nest func(nodes []*Comment, level int) []*Comment
	nest = func(nodes []*Comment, level int) []*Comment {
		visible := make([]*Comment, 0, len(nodes))
		for _, node := range nodes {
			if level < depth || node.IsDeleted {
				node.Replies = nest(byParent[node.ID], level+1)
			}
			if node.IsDeleted {
				if len(node.Replies) == 0 {
					continue
				}
				node.Tombstone()
			}
			visible = append(visible, node)
		}
		return visible
	}

	for _, parent := range parents {
		parent.Replies = nest(byParent[parent.ID], 1)
	}
}
