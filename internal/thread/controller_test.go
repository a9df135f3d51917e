// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/sec"
)

type controllerFixture struct {
	gateway    *fakeGateway
	controller *Controller
	redirects  int
}

func newControllerFixture(t *testing.T, identity Identity) *controllerFixture {
	t.Helper()

	fixture := &controllerFixture{gateway: newFakeGateway()}
	fixture.gateway.setPage(1, 1,
		loaded(topLevel("c2", 20), leaf(replyTo("c2", "r1", 21))),
		leaf(topLevel("c1", 10)),
	)

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	forest := newTestForest(fixture.gateway)
	fixture.controller = NewController(forest, fixture.gateway, identity,
		WithLoginRedirect(func() { fixture.redirects++ }),
		WithPageSize(2),
		WithControllerLogger(discard),
	)
	require.NoError(t, fixture.controller.LoadFirstPage(context.Background()))
	return fixture
}

func actor(userID string) Identity {
	return IdentityFunc(func() (string, bool) { return userID, true })
}

/*
TestController_AnonymousWrites checks that every write asks for a login and never
reaches the store.
*/
func TestController_AnonymousWrites(t *testing.T) {
	fixture := newControllerFixture(t, Anonymous)
	ctx := context.Background()

	_, err := fixture.controller.SubmitComment(ctx, "Hello")
	assert.True(t, apperr.HasCode(err, apperr.CodeAuthRequired))

	_, err = fixture.controller.SubmitReply(ctx, "c1", "Hello")
	assert.True(t, apperr.HasCode(err, apperr.CodeAuthRequired))

	_, err = fixture.controller.SubmitEdit(ctx, "c1", "Hello")
	assert.True(t, apperr.HasCode(err, apperr.CodeAuthRequired))

	err = fixture.controller.SubmitDelete(ctx, "c1")
	assert.True(t, apperr.HasCode(err, apperr.CodeAuthRequired))

	assert.Equal(t, 4, fixture.redirects)
	assert.Empty(t, fixture.gateway.creates)
	assert.Empty(t, fixture.gateway.updates)
	assert.Empty(t, fixture.gateway.removes)
	assert.False(t, fixture.controller.CanModify("c1"))
}

/*
TestController_SubmitComment checks the new comment goes first.
*/
func TestController_SubmitComment(t *testing.T) {
	fixture := newControllerFixture(t, actor("user-1"))

	created, err := fixture.controller.SubmitComment(context.Background(), "  Great chapter!  ")
	require.NoError(t, err)

	assert.Equal(t, "Great chapter!", created.Content)
	assert.Equal(t, []CreateInput{{Content: "Great chapter!", NovelRef: testNovel}}, fixture.gateway.creates)
	assert.Equal(t, []string{created.ID, "c2", "c1"}, fixture.controller.Forest().RootIDs())
	assert.True(t, fixture.controller.CanModify(created.ID))
}

/*
TestController_ContentFastFail checks the client-side content rule.
*/
func TestController_ContentFastFail(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"blank", " \n "},
		{"too_long", strings.Repeat("a", 1001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newControllerFixture(t, actor("user-1"))

			_, err := fixture.controller.SubmitComment(context.Background(), tt.content)
			require.True(t, apperr.HasCode(err, apperr.CodeValidation))
			assert.Equal(t, FieldContent, apperr.As(err).Details[0].Field)

			_, err = fixture.controller.SubmitEdit(context.Background(), "c1", tt.content)
			require.True(t, apperr.HasCode(err, apperr.CodeValidation))

			assert.Empty(t, fixture.gateway.creates)
			assert.Empty(t, fixture.gateway.updates)
		})
	}
}

/*
TestController_SubmitReply checks that a reply to an unexpanded comment shows up
without a fetch.
*/
func TestController_SubmitReply(t *testing.T) {
	fixture := newControllerFixture(t, actor("user-2"))
	fixture.gateway.actorID = "user-2"

	reply, err := fixture.controller.SubmitReply(context.Background(), "c1", "Agreed!")
	require.NoError(t, err)

	assert.Equal(t, "c1", reply.ParentRef)
	assert.Equal(t, []string{reply.ID}, fixture.controller.Forest().ChildIDs("c1"))
	parent, state, _ := fixture.controller.Forest().Lookup("c1")
	assert.Equal(t, Expanded, state)
	assert.Equal(t, 1, parent.ReplyCount)
	assert.Zero(t, fixture.gateway.calls())

	_, err = fixture.controller.SubmitReply(context.Background(), "missing", "Agreed!")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestController_SubmitReply_ParentGone checks that the forest drops a parent the
store no longer has.
*/
func TestController_SubmitReply_ParentGone(t *testing.T) {
	fixture := newControllerFixture(t, actor("user-2"))
	fixture.gateway.writeErr = apperr.NotFound("Parent comment")

	_, err := fixture.controller.SubmitReply(context.Background(), "c1", "Agreed!")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	assert.Equal(t, []string{"c2"}, fixture.controller.Forest().RootIDs())
}

/*
TestController_SubmitEdit checks ownership and the in-place update.
*/
func TestController_SubmitEdit(t *testing.T) {
	fixture := newControllerFixture(t, actor("user-2"))

	_, err := fixture.controller.SubmitEdit(context.Background(), "c1", "Mine now")
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
	assert.Empty(t, fixture.gateway.updates)

	fixture = newControllerFixture(t, actor("user-1"))
	updated, err := fixture.controller.SubmitEdit(context.Background(), "c1", "Edited")
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Content)

	comment, _, _ := fixture.controller.Forest().Lookup("c1")
	assert.Equal(t, "Edited", comment.Content)
}

/*
TestController_SubmitDelete covers the delete outcomes the forest reconciles.
*/
func TestController_SubmitDelete(t *testing.T) {
	tests := []struct {
		name     string
		writeErr error
		wantCode string
		wantIDs  []string
	}{
		{"success", nil, "", []string{"c2"}},
		{"already_deleted", apperr.AlreadyDeleted("Comment"), "", []string{"c2"}},
		{"not_found", apperr.NotFound("Comment"), apperr.CodeNotFound, []string{"c2"}},
		{"network", apperr.Network(io.ErrUnexpectedEOF), apperr.CodeNetwork, []string{"c2", "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newControllerFixture(t, actor("user-1"))
			fixture.gateway.writeErr = tt.writeErr

			err := fixture.controller.SubmitDelete(context.Background(), "c1")
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				assert.True(t, apperr.HasCode(err, tt.wantCode), "got %v", err)
			}
			assert.Equal(t, tt.wantIDs, fixture.controller.Forest().RootIDs())
		})
	}
}

/*
TestController_SessionExpired checks that a rejected token sends the actor to log in.
*/
func TestController_SessionExpired(t *testing.T) {
	fixture := newControllerFixture(t, actor("user-1"))
	fixture.gateway.writeErr = apperr.Unauthorized("Invalid or expired token")

	_, err := fixture.controller.SubmitComment(context.Background(), "Hello")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))
	assert.Equal(t, 1, fixture.redirects)
	assert.Equal(t, []string{"c2", "c1"}, fixture.controller.Forest().RootIDs())
}

/*
TestController_ToggleBranch walks a branch through expand, hide and show.
*/
func TestController_ToggleBranch(t *testing.T) {
	fixture := newControllerFixture(t, Anonymous)
	fixture.gateway.setReplies("c1", leaf(replyTo("c1", "r5", 15)))
	controller := fixture.controller
	ctx := context.Background()

	require.NoError(t, controller.ToggleBranch(ctx, "c1"))
	_, state, _ := controller.Forest().Lookup("c1")
	assert.Equal(t, Expanded, state)
	assert.Equal(t, []string{"r5"}, controller.Forest().ChildIDs("c1"))

	require.NoError(t, controller.ToggleBranch(ctx, "c1"))
	assert.True(t, controller.Forest().IsCollapsed("c1"))

	require.NoError(t, controller.ToggleBranch(ctx, "c1"))
	assert.False(t, controller.Forest().IsCollapsed("c1"))
	assert.Equal(t, 1, fixture.gateway.calls())

	assert.True(t, apperr.HasCode(controller.ToggleBranch(ctx, "nope"), apperr.CodeNotFound))
}

/*
TestController_ToggleBranch_ParentGone checks that a comment the store lost is
removed when its replies are requested.
*/
func TestController_ToggleBranch_ParentGone(t *testing.T) {
	fixture := newControllerFixture(t, Anonymous)
	fixture.gateway.replyErr = apperr.NotFound("Comment")

	err := fixture.controller.ToggleBranch(context.Background(), "c1")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	assert.Equal(t, []string{"c2"}, fixture.controller.Forest().RootIDs())
}

/*
TestController_LoadNextPage checks paging until the last page.
*/
func TestController_LoadNextPage(t *testing.T) {
	fixture := newControllerFixture(t, Anonymous)
	fixture.gateway.setPage(1, 2,
		leaf(topLevel("c3", 30)),
		leaf(topLevel("c2", 20)),
	)
	fixture.gateway.setPage(2, 2,
		leaf(topLevel("c2", 20)),
		leaf(topLevel("c1", 10)),
	)
	ctx := context.Background()
	require.NoError(t, fixture.controller.LoadFirstPage(ctx))

	more, err := fixture.controller.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, []string{"c3", "c2", "c1"}, fixture.controller.Forest().RootIDs())

	more, err = fixture.controller.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []int{1, 1, 2}, fixture.gateway.pageCalls)
}

/*
TestTokenIdentity reads the actor from token claims.
*/
func TestTokenIdentity(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token, err := sec.NewTokenServiceFromKeys(key, nil, "quill.test").GenerateAccessToken("user-7", "mira", time.Minute)
	require.NoError(t, err)

	userID, ok := NewTokenIdentity(token).Actor()
	assert.True(t, ok)
	assert.Equal(t, "user-7", userID)

	for _, raw := range []string{"", "not-a-token"} {
		_, ok := NewTokenIdentity(raw).Actor()
		assert.False(t, ok)
	}
}
