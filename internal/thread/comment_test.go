// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func nodeIDs(nodes []Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}
	return ids
}

/*
TestStripDeleted covers filtering and promotion at every level.
*/
func TestStripDeleted(t *testing.T) {
	tests := []struct {
		name  string
		input []Node
		want  []string
	}{
		{
			name:  "nothing_deleted",
			input: []Node{leaf(topLevel("c2", 20)), leaf(topLevel("c1", 10))},
			want:  []string{"c2", "c1"},
		},
		{
			name:  "childless_deleted",
			input: []Node{leaf(topLevel("c3", 30)), deleted(leaf(topLevel("c2", 20))), leaf(topLevel("c1", 10))},
			want:  []string{"c3", "c1"},
		},
		{
			name: "unloaded_replies_dropped",
			input: []Node{
				deleted(Node{Comment: Comment{ID: "c2", CreatedAt: at(20), ReplyCount: 3}}),
				leaf(topLevel("c1", 10)),
			},
			want: []string{"c1"},
		},
		{
			name: "loaded_replies_promoted",
			input: []Node{
				leaf(topLevel("c3", 30)),
				deleted(loaded(topLevel("c2", 20), leaf(replyTo("c2", "r2", 25)), leaf(replyTo("c2", "r1", 5)))),
				leaf(topLevel("c1", 10)),
			},
			want: []string{"c3", "r2", "c1", "r1"},
		},
		{
			name:  "empty",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nodeIDs(StripDeleted(tt.input)))
		})
	}
}

/*
TestStripDeleted_Nested checks that filtering reaches nested levels.
*/
func TestStripDeleted_Nested(t *testing.T) {
	input := []Node{
		loaded(topLevel("c1", 10),
			deleted(leaf(replyTo("c1", "r2", 12))),
			loaded(replyTo("c1", "r1", 11), deleted(leaf(replyTo("r1", "r3", 13)))),
		),
	}

	got := StripDeleted(input)

	assert.Equal(t, []string{"c1"}, nodeIDs(got))
	assert.Equal(t, []string{"r1"}, nodeIDs(got[0].Replies))
	assert.True(t, got[0].Replies[0].Loaded)
	assert.Empty(t, got[0].Replies[0].Replies)
}

/*
TestMergeNewestFirst checks ties keep the first sequence ahead.
*/
func TestMergeNewestFirst(t *testing.T) {
	a := []Node{leaf(topLevel("a2", 20)), leaf(topLevel("a1", 10))}
	b := []Node{leaf(topLevel("b2", 20)), leaf(topLevel("b1", 5))}

	merged := mergeNewestFirst(a, b, nodeCreatedAt)
	assert.Equal(t, []string{"a2", "b2", "a1", "b1"}, nodeIDs(merged))
}
