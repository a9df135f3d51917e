// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// SocialCommentTable represents the 'social.comment' table
type SocialCommentTable struct {
	Table      string
	ID         string
	NovelID    string
	ParentID   string
	UserID     string
	Body       string
	IsDeleted  string
	ReplyCount string
	CreatedAt  string
	UpdatedAt  string
}

// SocialComment is the schema definition for social.comment
var SocialComment = SocialCommentTable{
	Table:      "social.comment",
	ID:         "id",
	NovelID:    "novelid",
	ParentID:   "parentid",
	UserID:     "userid",
	Body:       "body",
	IsDeleted:  "isdeleted",
	ReplyCount: "replycount",
	CreatedAt:  "createdat",
	UpdatedAt:  "updatedat",
}

// Columns returns all standard column names
func (t SocialCommentTable) Columns() []string {
	return []string{
		t.ID, t.NovelID, t.ParentID, t.UserID, t.Body,
		t.IsDeleted, t.ReplyCount, t.CreatedAt, t.UpdatedAt,
	}
}
