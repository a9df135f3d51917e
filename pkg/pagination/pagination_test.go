// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pagination_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/quill/pkg/pagination"
)

/*
TestFromRequest_Clamping checks defaults and clamping of query parameters.
*/
func TestFromRequest_Clamping(t *testing.T) {
	tests := []struct {
		name  string
		query string
		page  int
		limit int
	}{
		{"defaults", "", 1, 20},
		{"explicit", "?page=3&limit=10", 3, 10},
		{"negative_page", "?page=-2", 1, 20},
		{"limit_too_large", "?limit=1000", 1, 20},
		{"garbage", "?page=abc&limit=xyz", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest("GET", "/comments"+tt.query, nil)
			params := pagination.FromRequest(request)
			assert.Equal(t, tt.page, params.Page)
			assert.Equal(t, tt.limit, params.Limit)
		})
	}
}

/*
TestNewMeta verifies page count computation.
*/
func TestNewMeta(t *testing.T) {
	meta := pagination.NewMeta(1, 20, 41)
	assert.Equal(t, 3, meta.Pages)
	assert.True(t, meta.HasNext())

	last := pagination.NewMeta(3, 20, 41)
	assert.False(t, last.HasNext())

	empty := pagination.NewMeta(1, 20, 0)
	assert.Equal(t, 0, empty.Pages)
	assert.False(t, empty.HasNext())
}

/*
TestParams_Offset verifies the SQL offset derivation.
*/
func TestParams_Offset(t *testing.T) {
	assert.Equal(t, 0, pagination.Params{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 40, pagination.Params{Page: 3, Limit: 20}.Offset())
}
