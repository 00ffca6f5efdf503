package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/openmined/notesync/internal/sync"
)

var (
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	bold      = lipgloss.NewStyle().Bold(true)
)

func printActions(w io.Writer, actions []*sync.SyncAction) {
	if len(actions) == 0 {
		fmt.Fprintln(w, green.Render("Everything is in sync"))
		return
	}
	fmt.Fprintf(w, "%s\n", bold.Render(english.Plural(len(actions), "pending action", "")))
	for _, a := range actions {
		fmt.Fprintf(w, "  %s %s\n", actionStyle(a).Render(fmt.Sprintf("%-8s", a.Type)), describe(a))
	}
}

func printResult(w io.Writer, res *sync.RunResult) {
	if res == nil {
		return
	}
	if res.Aborted {
		fmt.Fprintf(w, "%s, pending changes are kept for the next run\n", yellow.Render("Sync aborted"))
		return
	}
	if res.Sync == nil {
		printActions(w, res.Planned)
		return
	}

	summary := fmt.Sprintf("%s completed, %s failed, %s skipped in %s",
		humanize.Comma(int64(len(res.Sync.Completed))),
		humanize.Comma(int64(len(res.Sync.Failed))),
		humanize.Comma(int64(len(res.Sync.Skipped))),
		res.Duration.Round(time.Millisecond),
	)
	if res.Failed() > 0 {
		fmt.Fprintln(w, red.Render(summary))
	} else {
		fmt.Fprintln(w, green.Render(summary))
	}
	for _, f := range res.Sync.Failed {
		fmt.Fprintf(w, "  %s %s: %v\n", red.Render("FAILED"), describe(f.Action), f.Err)
	}
}

func actionStyle(a *sync.SyncAction) lipgloss.Style {
	switch a.Type {
	case sync.ActionDelete:
		return red
	case sync.ActionConflict:
		return yellow
	}
	return cyan
}

func describe(a *sync.SyncAction) string {
	arrow := "→ remote"
	if a.Target == sync.TargetLocal {
		arrow = "→ local"
	}
	return fmt.Sprintf("%s %s %s", breadcrumb(a.Node), gray.Render(arrow), lightGray.Render(humanize.Time(a.ChangedAt)))
}

// breadcrumb joins the titles from the top ancestor down to n
func breadcrumb(n *sync.SyncNode) string {
	var parts []string
	for cur := n; cur != nil && !cur.IsRoot(); cur = cur.Parent {
		parts = append(parts, cur.Title())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " / ")
}

// printTree renders the merged tree with one line per role node
func printTree(w io.Writer, root *sync.SyncNode) {
	var walk func(n *sync.SyncNode, depth int)
	walk = func(n *sync.SyncNode, depth int) {
		for _, c := range n.Children {
			if c.Role == "" {
				walk(c, depth)
				continue
			}
			fmt.Fprintf(w, "%s%s %s %s\n", strings.Repeat("  ", depth), c.Title(), gray.Render("("+c.Role+")"), sides(c))
			walk(c, depth+1)
		}
	}
	walk(root, 0)
}

func sides(n *sync.SyncNode) string {
	local, remote := gray.Render("·"), gray.Render("·")
	if n.LocalMeta != nil {
		local = green.Render("L")
		if n.LocalMeta.Deleted {
			local = red.Render("L")
		}
	}
	if n.RemoteMeta != nil {
		remote = green.Render("R")
		if n.RemoteMeta.Deleted {
			remote = red.Render("R")
		}
	}
	var status string
	switch {
	case n.SyncedAt == nil:
		status = yellow.Render("new")
	case n.ChangedLocal() || n.ChangedRemote():
		status = yellow.Render("changed")
	default:
		status = lightGray.Render("synced " + humanize.Time(*n.SyncedAt))
	}
	return local + remote + " " + status
}
