// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// UserAccountTable represents the 'users.account' table.
//
// The comment store only reads it to resolve author display names; accounts
// are written by the identity service.
type UserAccountTable struct {
	Table     string
	ID        string
	Username  string
	CreatedAt string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:     "users.account",
	ID:        "id",
	Username:  "username",
	CreatedAt: "createdat",
}
