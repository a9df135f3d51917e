// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taibuivan/quill/pkg/pagination"
)

const testNovel = "N1"

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// at returns a timestamp minute minutes after baseTime.
func at(minute int) time.Time {
	return baseTime.Add(time.Duration(minute) * time.Minute)
}

func topLevel(id string, minute int) Comment {
	return Comment{ID: id, NovelRef: testNovel, AuthorRef: "user-1", AuthorName: "mira", Content: "comment " + id, CreatedAt: at(minute)}
}

func replyTo(parent, id string, minute int) Comment {
	reply := topLevel(id, minute)
	reply.ParentRef = parent
	return reply
}

func leaf(c Comment) Node {
	return Node{Comment: c}
}

func loaded(c Comment, replies ...Node) Node {
	c.ReplyCount = len(replies)
	return Node{Comment: c, Replies: replies, Loaded: true}
}

func deleted(n Node) Node {
	n.IsDeleted = true
	n.Content = ""
	return n
}

// fakeGateway is an in-process [Gateway] with hooks for blocking and failing calls.
type fakeGateway struct {
	mu sync.Mutex

	pages   map[int]Page
	replies map[string][]Node

	// replyErr fails every ListReplies call while set.
	replyErr error
	// gate, when set, holds ListReplies until it is closed.
	gate chan struct{}
	// started receives the parent id of every ListReplies call.
	started chan string

	replyCalls   int
	replyOptions []ReplyOptions
	pageCalls    []int
	creates      []CreateInput
	updates      []string
	removes      []string

	writeErr error
	sequence int
	actorID  string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		pages:   make(map[int]Page),
		replies: make(map[string][]Node),
		started: make(chan string, 16),
		actorID: "user-1",
	}
}

func (gateway *fakeGateway) setPage(number, pages int, items ...Node) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.pages[number] = Page{Items: items, Pagination: pagination.Meta{Page: number, Pages: pages, Limit: len(items)}}
}

func (gateway *fakeGateway) setReplies(parent string, replies ...Node) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.replies[parent] = replies
}

func (gateway *fakeGateway) calls() int {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	return gateway.replyCalls
}

func (gateway *fakeGateway) ListTopLevel(_ context.Context, _ string, page, _ int) (Page, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.pageCalls = append(gateway.pageCalls, page)
	return gateway.pages[page], nil
}

func (gateway *fakeGateway) ListReplies(ctx context.Context, parentRef string, opts ReplyOptions) ([]Node, error) {
	gateway.mu.Lock()
	gateway.replyCalls++
	gateway.replyOptions = append(gateway.replyOptions, opts)
	gate := gateway.gate
	gateway.mu.Unlock()

	gateway.started <- parentRef
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	if gateway.replyErr != nil {
		return nil, gateway.replyErr
	}
	return gateway.replies[parentRef], nil
}

func (gateway *fakeGateway) Create(_ context.Context, input CreateInput) (Comment, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.creates = append(gateway.creates, input)
	if gateway.writeErr != nil {
		return Comment{}, gateway.writeErr
	}
	gateway.sequence++
	return Comment{
		ID:        fmt.Sprintf("new-%d", gateway.sequence),
		NovelRef:  input.NovelRef,
		ParentRef: input.ParentRef,
		AuthorRef: gateway.actorID,
		Content:   input.Content,
		CreatedAt: at(1000 + gateway.sequence),
	}, nil
}

func (gateway *fakeGateway) Update(_ context.Context, id, content string) (Comment, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.updates = append(gateway.updates, id)
	if gateway.writeErr != nil {
		return Comment{}, gateway.writeErr
	}
	return Comment{ID: id, NovelRef: testNovel, AuthorRef: gateway.actorID, Content: content, CreatedAt: baseTime}, nil
}

func (gateway *fakeGateway) Remove(_ context.Context, id string) error {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	gateway.removes = append(gateway.removes, id)
	return gateway.writeErr
}
