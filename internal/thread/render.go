// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package thread

import (
	"fmt"
	"io"
	"strings"
)

const (
	renderIndent     = "    "
	renderTimeLayout = "2006-01-02 15:04"
)

// Render writes views as an indented text tree, one comment per block.
//
// Branches show an affordance line: unloaded replies, a fetch in progress,
// a failed fetch, or a collapsed branch.
func Render(w io.Writer, views []View) error {
	r := &renderer{w: w}
	r.level(views, 0)
	return r.err
}

type renderer struct {
	w   io.Writer
	err error
}

func (r *renderer) level(views []View, depth int) {
	for _, view := range views {
		r.comment(view, depth)
		r.level(view.Replies, depth+1)
	}
}

func (r *renderer) comment(view View, depth int) {
	indent := strings.Repeat(renderIndent, depth)

	r.printf("%s%s · %s · %s\n", indent, view.DisplayAuthor(), view.CreatedAt.Format(renderTimeLayout), view.ID)
	for line := range strings.Lines(view.Content) {
		r.printf("%s  %s\n", indent, strings.TrimRight(line, "\n"))
	}

	if affordance := branchAffordance(view); affordance != "" {
		r.printf("%s  %s\n", indent, affordance)
	}
}

func (r *renderer) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

func branchAffordance(view View) string {
	switch view.State {
	case Expanding:
		return "[loading replies...]"
	case Expanded:
		if view.Collapsed && view.LoadedReplies > 0 {
			return fmt.Sprintf("[%s hidden]", plural(view.LoadedReplies, "reply", "replies"))
		}
	case NotExpanded:
		if view.Err != nil {
			return fmt.Sprintf("[replies failed to load: %s]", view.Err.Error())
		}
		if view.ReplyCount > 0 {
			return fmt.Sprintf("[+%s]", plural(view.ReplyCount, "reply", "replies"))
		}
	}
	return ""
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
