// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package comment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/quill/internal/platform/apperr"
	"github.com/taibuivan/quill/internal/platform/database/schema"
	"github.com/taibuivan/quill/internal/platform/dberr"
)

// # PostgreSQL Repository

// postgresRepository implements [Repository] using pgx.
//
// Descendants are loaded with a single WITH RECURSIVE query bounded by depth;
// reply counts are maintained in the same transaction as the write that changes them.
type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgreSQL backed comment store.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

var (
	sc = schema.SocialComment
	ua = schema.UserAccount

	// selectColumns lists the comment projection, aliased c, joined to accounts as a.
	selectColumns = fmt.Sprintf(
		"c.%s, c.%s, c.%s, c.%s, COALESCE(a.%s, ''), c.%s, c.%s, c.%s, c.%s, c.%s",
		sc.ID, sc.NovelID, sc.ParentID, sc.UserID, ua.Username,
		sc.Body, sc.CreatedAt, sc.UpdatedAt, sc.IsDeleted, sc.ReplyCount,
	)

	authorJoin = fmt.Sprintf("LEFT JOIN %s a ON a.%s = c.%s", ua.Table, ua.ID, sc.UserID)
)

/*
ListTopLevel retrieves one page of live root comments for a novel.

Description: Uses a window function for the total so a single round-trip
serves both the page and its pagination metadata.
*/
func (repository *postgresRepository) ListTopLevel(ctx context.Context, novelRef string, limit, offset int) ([]*Comment, int, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM %s c
		%s
		WHERE c.%s = $1 AND c.%s IS NULL AND c.%s = FALSE
		ORDER BY c.%s DESC, c.%s DESC
		LIMIT $2 OFFSET $3
	`,
		selectColumns,
		sc.Table,
		authorJoin,
		sc.NovelID, sc.ParentID, sc.IsDeleted,
		sc.CreatedAt, sc.ID,
	)

	rows, err := repository.pool.Query(ctx, query, novelRef, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []*Comment{}
	var totalCount int

	for rows.Next() {
		comment, err := scanComment(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to iterate comments: %w", err)
	}

	// An offset beyond the last row yields no rows and therefore no window total.
	if len(comments) == 0 && offset > 0 {
		countQuery := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s = $1 AND %s IS NULL AND %s = FALSE",
			sc.Table, sc.NovelID, sc.ParentID, sc.IsDeleted,
		)
		if err := repository.pool.QueryRow(ctx, countQuery, novelRef).Scan(&totalCount); err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to count comments: %w", err)
		}
	}

	return comments, totalCount, nil
}

/*
ListDescendants walks the reply graph below parentIDs, depth levels deep.

Description: The recursive term follows edges while level < depth, and always
below a deleted row so that live replies under a tombstone stay reachable.
*/
func (repository *postgresRepository) ListDescendants(ctx context.Context, parentIDs []string, depth int) ([]*Comment, error) {
	if len(parentIDs) == 0 || depth < 1 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE tree AS (
			SELECT %[1]s, 1 AS level
			FROM %[2]s
			WHERE %[3]s = ANY($1::uuid[])

			UNION ALL

			SELECT %[8]s, tree.level + 1
			FROM %[2]s child
			JOIN tree ON child.%[3]s = tree.%[4]s
			WHERE tree.level < $2 OR tree.%[9]s
		)
		SELECT %[5]s
		FROM tree c
		%[6]s
		ORDER BY c.level, c.%[7]s DESC, c.%[4]s DESC
	`,
		qualify("", sc.Columns()),
		sc.Table,
		sc.ParentID,
		sc.ID,
		selectColumns,
		authorJoin,
		sc.CreatedAt,
		qualify("child", sc.Columns()),
		sc.IsDeleted,
	)

	rows, err := repository.pool.Query(ctx, query, parentIDs, depth)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load replies: %w", err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan reply: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate replies: %w", err)
	}

	return comments, nil
}

// FindByID returns a single comment regardless of its deleted flag.
func (repository *postgresRepository) FindByID(ctx context.Context, id string) (*Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s c %s WHERE c.%s = $1`, selectColumns, sc.Table, authorJoin, sc.ID)

	comment, err := scanComment(repository.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "Comment")
	}
	return comment, nil
}

/*
Create inserts a comment and, for replies, bumps the parent's reply count.

Description: The parent update doubles as the liveness check: it only matches a
non-deleted row, and the row lock it takes serialises against a concurrent delete.
*/
func (repository *postgresRepository) Create(ctx context.Context, comment *Comment) error {
	return pgx.BeginFunc(ctx, repository.pool, func(tx pgx.Tx) error {
		if comment.ParentRef != nil {
			bump := fmt.Sprintf(
				"UPDATE %s SET %s = %s + 1 WHERE %s = $1 AND %s = FALSE",
				sc.Table, sc.ReplyCount, sc.ReplyCount, sc.ID, sc.IsDeleted,
			)
			tag, err := tx.Exec(ctx, bump, *comment.ParentRef)
			if err != nil {
				return dberr.Wrap(err, "Parent comment")
			}
			if tag.RowsAffected() == 0 {
				return apperr.NotFound("Parent comment")
			}
		}

		insert := fmt.Sprintf(`
			INSERT INTO %s (%s, %s, %s, %s, %s)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING %s, %s
		`,
			sc.Table, sc.ID, sc.NovelID, sc.ParentID, sc.UserID, sc.Body,
			sc.CreatedAt, sc.UpdatedAt,
		)
		err := tx.QueryRow(ctx, insert,
			comment.ID, comment.NovelRef, comment.ParentRef, comment.Author.ID, comment.Content,
		).Scan(&comment.CreatedAt, &comment.UpdatedAt)
		if err != nil {
			return dberr.Wrap(err, "Comment")
		}

		lookup := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", ua.Username, ua.Table, ua.ID)
		err = tx.QueryRow(ctx, lookup, comment.Author.ID).Scan(&comment.Author.Username)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: failed to resolve author: %w", err)
		}
		return nil
	})
}

// UpdateContent rewrites the body of a live comment.
func (repository *postgresRepository) UpdateContent(ctx context.Context, id, content string) (*Comment, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $2, %s = now()
		WHERE %s = $1 AND %s = FALSE
	`, sc.Table, sc.Body, sc.UpdatedAt, sc.ID, sc.IsDeleted)

	tag, err := repository.pool.Exec(ctx, query, id, content)
	if err != nil {
		return nil, dberr.Wrap(err, "Comment")
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("Comment")
	}
	return repository.FindByID(ctx, id)
}

/*
SoftDelete flags a comment and decrements the parent's reply count.

Description: The row is locked first so that a double delete racing on two
connections resolves to exactly one success and one ALREADY_DELETED.
*/
func (repository *postgresRepository) SoftDelete(ctx context.Context, id string) (*Comment, error) {
	var deleted *Comment

	err := pgx.BeginFunc(ctx, repository.pool, func(tx pgx.Tx) error {
		lock := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = $1 FOR UPDATE", sc.ParentID, sc.IsDeleted, sc.Table, sc.ID)

		var parentID *string
		var isDeleted bool
		if err := tx.QueryRow(ctx, lock, id).Scan(&parentID, &isDeleted); err != nil {
			return dberr.Wrap(err, "Comment")
		}
		if isDeleted {
			return apperr.AlreadyDeleted("Comment")
		}

		flag := fmt.Sprintf("UPDATE %s SET %s = TRUE, %s = now() WHERE %s = $1", sc.Table, sc.IsDeleted, sc.UpdatedAt, sc.ID)
		if _, err := tx.Exec(ctx, flag, id); err != nil {
			return dberr.Wrap(err, "Comment")
		}

		if parentID != nil {
			decrement := fmt.Sprintf(
				"UPDATE %s SET %s = GREATEST(%s - 1, 0) WHERE %s = $1",
				sc.Table, sc.ReplyCount, sc.ReplyCount, sc.ID,
			)
			if _, err := tx.Exec(ctx, decrement, *parentID); err != nil {
				return dberr.Wrap(err, "Parent comment")
			}
		}

		query := fmt.Sprintf(`SELECT %s FROM %s c %s WHERE c.%s = $1`, selectColumns, sc.Table, authorJoin, sc.ID)
		comment, err := scanComment(tx.QueryRow(ctx, query, id))
		if err != nil {
			return dberr.Wrap(err, "Comment")
		}
		deleted = comment
		return nil
	})
	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// # Row Mapping

// scanComment hydrates a comment from selectColumns, plus any trailing targets.
func scanComment(row pgx.Row, extra ...any) (*Comment, error) {
	var comment Comment
	targets := []any{
		&comment.ID,
		&comment.NovelRef,
		&comment.ParentRef,
		&comment.Author.ID,
		&comment.Author.Username,
		&comment.Content,
		&comment.CreatedAt,
		&comment.UpdatedAt,
		&comment.IsDeleted,
		&comment.ReplyCount,
	}
	if err := row.Scan(append(targets, extra...)...); err != nil {
		return nil, err
	}
	return &comment, nil
}

// qualify joins column names, prefixing each with alias when one is given.
func qualify(alias string, columns []string) string {
	if alias == "" {
		return strings.Join(columns, ", ")
	}
	qualified := make([]string, len(columns))
	for i, column := range columns {
		qualified[i] = alias + "." + column
	}
	return strings.Join(qualified, ", ")
}
