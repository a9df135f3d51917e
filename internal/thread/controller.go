// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import (
	"context"
	"log/slog"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/constants"
	"github.com/taibuivan/quill/internal/platform/sec"
	"github.com/taibuivan/quill/internal/platform/validate"
	"github.com/taibuivan/quill/pkg/pagination"
)

// FieldContent names the body field in client-side validation errors.
const FieldContent = "content"

// # Identity

// Identity tells the controller who the local actor is.
type Identity interface {
	// Actor returns the actor's user id, or false when nobody is logged in.
	Actor() (string, bool)
}

// IdentityFunc adapts a function to [Identity].
type IdentityFunc func() (string, bool)

// Actor implements [Identity].
func (fn IdentityFunc) Actor() (string, bool) { return fn() }

// Anonymous is the identity of a reader who is not logged in.
var Anonymous Identity = IdentityFunc(func() (string, bool) { return "", false })

// TokenIdentity reads the actor from the claims of an access token.
//
// The signature is not checked; the API verifies the token on every write.
type TokenIdentity struct {
	userID string
}

// NewTokenIdentity decodes token. An empty or undecodable token is anonymous.
func NewTokenIdentity(token string) TokenIdentity {
	if token == "" {
		return TokenIdentity{}
	}
	claims, err := sec.ParseUnverified(token)
	if err != nil {
		return TokenIdentity{}
	}
	return TokenIdentity{userID: claims.UserID}
}

// Actor implements [Identity].
func (identity TokenIdentity) Actor() (string, bool) {
	return identity.userID, identity.userID != ""
}

// # Controller

/*
Controller turns actor intents into Gateway calls and Forest updates.

Writes are confirmed by the store before the forest changes, so a failed
write leaves the view as it was. An anonymous write never reaches the store:
the login redirect fires and AUTH_REQUIRED is returned.
*/
type Controller struct {
	forest   *Forest
	gateway  Gateway
	identity Identity
	pageSize int
	logger   *slog.Logger

	loginRequired func()
}

// ControllerOption customises a [Controller].
type ControllerOption func(*Controller)

// WithLoginRedirect sets the callback run when an anonymous actor tries to write.
func WithLoginRedirect(redirect func()) ControllerOption {
	return func(controller *Controller) { controller.loginRequired = redirect }
}

// WithPageSize sets how many top-level comments each page requests.
func WithPageSize(size int) ControllerOption {
	return func(controller *Controller) {
		if size > 0 {
			controller.pageSize = size
		}
	}
}

// WithControllerLogger sets the logger for write outcomes.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(controller *Controller) { controller.logger = logger }
}

// NewController wires a controller around forest.
func NewController(forest *Forest, gateway Gateway, identity Identity, opts ...ControllerOption) *Controller {
	controller := &Controller{
		forest:        forest,
		gateway:       gateway,
		identity:      identity,
		pageSize:      pagination.DefaultLimit,
		logger:        slog.Default(),
		loginRequired: func() {},
	}
	for _, opt := range opts {
		opt(controller)
	}
	return controller
}

// Forest returns the forest the controller mutates.
func (controller *Controller) Forest() *Forest {
	return controller.forest
}

// # Reading

// LoadFirstPage replaces the forest with the newest page of top-level comments.
func (controller *Controller) LoadFirstPage(ctx context.Context) error {
	page, err := controller.gateway.ListTopLevel(ctx, controller.forest.NovelRef(), 1, controller.pageSize)
	if err != nil {
		return err
	}
	return controller.forest.AssemblePage(page)
}

// LoadNextPage appends the following page. It reports false when there is none.
func (controller *Controller) LoadNextPage(ctx context.Context) (bool, error) {
	current := controller.forest.Pagination()
	if current.Page == 0 {
		return true, controller.LoadFirstPage(ctx)
	}
	if !current.HasNext() {
		return false, nil
	}

	page, err := controller.gateway.ListTopLevel(ctx, controller.forest.NovelRef(), current.Page+1, controller.pageSize)
	if err != nil {
		return false, err
	}
	if err := controller.forest.AppendPage(page); err != nil {
		return false, err
	}
	return true, nil
}

/*
ToggleBranch is the "show replies" / "hide replies" action on id.

A NotExpanded branch is fetched, a branch already being fetched is waited on,
and an Expanded branch flips between shown and hidden.
*/
func (controller *Controller) ToggleBranch(ctx context.Context, id string) error {
	_, state, found := controller.forest.Lookup(id)
	if !found {
		return apperr.NotFound("Comment")
	}

	if state == Expanded {
		return controller.forest.SetCollapsed(id, !controller.forest.IsCollapsed(id))
	}

	err := controller.forest.Expand(ctx, id)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		controller.forest.ApplyDelete(id)
	}
	return err
}

// # Writing

// CanModify reports whether the local actor authored id.
//
// It only drives UI affordances; the store makes the real decision.
func (controller *Controller) CanModify(id string) bool {
	actorID, ok := controller.identity.Actor()
	if !ok {
		return false
	}
	comment, _, found := controller.forest.Lookup(id)
	return found && comment.AuthorRef == actorID
}

// SubmitComment posts a new top-level comment and puts it first in the forest.
func (controller *Controller) SubmitComment(ctx context.Context, content string) (Comment, error) {
	if err := controller.requireActor(); err != nil {
		return Comment{}, err
	}
	content, err := checkContent(content)
	if err != nil {
		return Comment{}, err
	}

	created, err := controller.gateway.Create(ctx, CreateInput{
		Content:  content,
		NovelRef: controller.forest.NovelRef(),
	})
	if err != nil {
		return Comment{}, controller.writeFailed(ctx, "comment_submit_failed", "", err)
	}

	if err := controller.forest.InsertTopLevel(created); err != nil {
		return Comment{}, err
	}
	return created, nil
}

// SubmitReply posts a reply to parentID and folds it into the parent's branch.
func (controller *Controller) SubmitReply(ctx context.Context, parentID, content string) (Comment, error) {
	if err := controller.requireActor(); err != nil {
		return Comment{}, err
	}
	parent, _, found := controller.forest.Lookup(parentID)
	if !found {
		return Comment{}, apperr.NotFound("Parent comment")
	}
	content, err := checkContent(content)
	if err != nil {
		return Comment{}, err
	}

	created, err := controller.gateway.Create(ctx, CreateInput{
		Content:   content,
		NovelRef:  parent.NovelRef,
		ParentRef: parentID,
	})
	if err != nil {
		return Comment{}, controller.writeFailed(ctx, "reply_submit_failed", parentID, err)
	}

	if err := controller.forest.InsertReply(created); err != nil {
		return Comment{}, err
	}
	return created, nil
}

// SubmitEdit replaces the content of id after the store accepts it.
func (controller *Controller) SubmitEdit(ctx context.Context, id, content string) (Comment, error) {
	if err := controller.requireOwner(id); err != nil {
		return Comment{}, err
	}
	content, err := checkContent(content)
	if err != nil {
		return Comment{}, err
	}

	updated, err := controller.gateway.Update(ctx, id, content)
	if err != nil {
		return Comment{}, controller.writeFailed(ctx, "edit_submit_failed", id, err)
	}

	if err := controller.forest.ApplyEdit(id, updated.Content); err != nil {
		return Comment{}, err
	}
	return updated, nil
}

// SubmitDelete soft-deletes id and removes it from the forest.
// A comment somebody else already deleted is treated as removed.
func (controller *Controller) SubmitDelete(ctx context.Context, id string) error {
	if err := controller.requireOwner(id); err != nil {
		return err
	}

	err := controller.gateway.Remove(ctx, id)
	if err != nil && !apperr.HasCode(err, apperr.CodeAlreadyDeleted) {
		return controller.writeFailed(ctx, "delete_submit_failed", id, err)
	}

	controller.forest.ApplyDelete(id)
	return nil
}

// # Helpers

func (controller *Controller) requireActor() error {
	if _, ok := controller.identity.Actor(); ok {
		return nil
	}
	controller.loginRequired()
	return apperr.AuthRequired("Log in to join the discussion")
}

func (controller *Controller) requireOwner(id string) error {
	if err := controller.requireActor(); err != nil {
		return err
	}
	if _, _, found := controller.forest.Lookup(id); !found {
		return apperr.NotFound("Comment")
	}
	if !controller.CanModify(id) {
		return apperr.Forbidden("You can only change your own comments")
	}
	return nil
}

// writeFailed reconciles the forest with a rejected write and returns err.
func (controller *Controller) writeFailed(ctx context.Context, event, id string, err error) error {
	switch {
	case apperr.HasCode(err, apperr.CodeAuthRequired, apperr.CodeUnauthorized):
		controller.loginRequired()
	case apperr.HasCode(err, apperr.CodeNotFound) && id != "":
		controller.forest.ApplyDelete(id)
	}

	controller.logger.WarnContext(ctx, event,
		slog.String("comment_id", id),
		slog.Any("error", err),
	)
	return err
}

// checkContent applies the store's content rule before the request is sent.
func checkContent(content string) (string, error) {
	normalized := validate.NormalizeText(content)
	v := &validate.Validator{}
	if err := v.Content(FieldContent, normalized, constants.CommentMaxLength).Err(); err != nil {
		return "", err
	}
	return normalized, nil
}
