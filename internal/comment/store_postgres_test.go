//go:build integration

// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/migration"
	"github.com/taibuivan/quill/internal/platform/postgres"
	"github.com/taibuivan/quill/pkg/pointer"
	"github.com/taibuivan/quill/pkg/uuid"
)

// pgFixture is a migrated database scoped to one novel and one author.
type pgFixture struct {
	repository Repository
	pool       *pgxpool.Pool
	novelRef   string
	authorID   string
}

func newPostgresFixture(t *testing.T) *pgFixture {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres repository tests")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	require.NoError(t, migration.RunUp(dsn, "../../data/migrations", logger))
	pool, err := postgres.NewPool(ctx, dsn, logger)
	require.NoError(t, err)

	fixture := &pgFixture{
		repository: NewPostgresRepository(pool),
		pool:       pool,
		novelRef:   "novel-" + uuid.New(),
		authorID:   uuid.New(),
	}
	_, err = pool.Exec(ctx, "INSERT INTO users.account (id, username) VALUES ($1, $2)", fixture.authorID, "mira-"+fixture.authorID[:8])
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DELETE FROM social.comment WHERE novelid = $1", fixture.novelRef)
		_, _ = pool.Exec(ctx, "DELETE FROM users.account WHERE id = $1", fixture.authorID)
		pool.Close()
	})
	return fixture
}

func (fixture *pgFixture) create(t *testing.T, parent *Comment) *Comment {
	t.Helper()

	comment := &Comment{
		ID:       uuid.New(),
		NovelRef: fixture.novelRef,
		Author:   Author{ID: fixture.authorID},
		Content:  "body",
	}
	if parent != nil {
		comment.ParentRef = pointer.To(parent.ID)
	}
	require.NoError(t, fixture.repository.Create(context.Background(), comment))
	return comment
}

func (fixture *pgFixture) find(t *testing.T, id string) *Comment {
	t.Helper()
	found, err := fixture.repository.FindByID(context.Background(), id)
	require.NoError(t, err)
	return found
}

/*
TestPostgresRepository_Create checks the reply count bump and the live parent rule.
*/
func TestPostgresRepository_Create(t *testing.T) {
	fixture := newPostgresFixture(t)
	ctx := context.Background()

	root := fixture.create(t, nil)
	assert.False(t, root.CreatedAt.IsZero())
	assert.NotEmpty(t, root.Author.Username)

	fixture.create(t, root)
	assert.Equal(t, 1, fixture.find(t, root.ID).ReplyCount)

	_, err := fixture.repository.SoftDelete(ctx, root.ID)
	require.NoError(t, err)

	orphan := &Comment{
		ID:        uuid.New(),
		NovelRef:  fixture.novelRef,
		ParentRef: pointer.To(root.ID),
		Author:    Author{ID: fixture.authorID},
		Content:   "too late",
	}
	err = fixture.repository.Create(ctx, orphan)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	// The rejected insert rolled back with the bump.
	_, err = fixture.repository.FindByID(ctx, orphan.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	assert.Equal(t, 1, fixture.find(t, root.ID).ReplyCount)
}

/*
TestPostgresRepository_SoftDelete checks the double delete and the parent count.
*/
func TestPostgresRepository_SoftDelete(t *testing.T) {
	fixture := newPostgresFixture(t)
	ctx := context.Background()

	root := fixture.create(t, nil)
	reply := fixture.create(t, root)

	deleted, err := fixture.repository.SoftDelete(ctx, reply.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, 0, fixture.find(t, root.ID).ReplyCount)

	_, err = fixture.repository.SoftDelete(ctx, reply.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyDeleted))
	assert.Equal(t, 0, fixture.find(t, root.ID).ReplyCount)

	_, err = fixture.repository.SoftDelete(ctx, uuid.New())
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestPostgresRepository_ListDescendants checks the depth bound and that deleted
rows do not use it up.
*/
func TestPostgresRepository_ListDescendants(t *testing.T) {
	fixture := newPostgresFixture(t)
	ctx := context.Background()

	root := fixture.create(t, nil)
	levelOne := fixture.create(t, root)
	levelTwo := fixture.create(t, levelOne)
	levelThree := fixture.create(t, levelTwo)
	fixture.create(t, levelThree)

	descendants, err := fixture.repository.ListDescendants(ctx, []string{root.ID}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{levelOne.ID, levelTwo.ID}, ids(descendants))

	_, err = fixture.repository.SoftDelete(ctx, levelTwo.ID)
	require.NoError(t, err)

	descendants, err = fixture.repository.ListDescendants(ctx, []string{root.ID}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{levelOne.ID, levelTwo.ID, levelThree.ID}, ids(descendants))
	assert.True(t, descendants[1].IsDeleted)

	empty, err := fixture.repository.ListDescendants(ctx, nil, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

/*
TestPostgresRepository_ListTopLevel checks ordering, live filtering and the
total on a page past the end.
*/
func TestPostgresRepository_ListTopLevel(t *testing.T) {
	fixture := newPostgresFixture(t)
	ctx := context.Background()

	older := fixture.create(t, nil)
	newer := fixture.create(t, nil)
	gone := fixture.create(t, nil)
	_, err := fixture.repository.SoftDelete(ctx, gone.ID)
	require.NoError(t, err)

	page, total, err := fixture.repository.ListTopLevel(ctx, fixture.novelRef, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, ids(page))
	assert.Equal(t, 2, total)

	page, total, err = fixture.repository.ListTopLevel(ctx, fixture.novelRef, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 2, total)
}
