package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/notesync/internal/sync"
	"github.com/openmined/notesync/internal/utils"
)

const noteExt = ".md"

// Option configures a Provider
type Option func(*Provider)

// WithClock sets the time used to stamp detected deletions
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// Provider is the file-tree side of the sync. Directories become GROUP
// nodes and text files NOTE nodes.
type Provider struct {
	root    string
	mapper  *sync.RoleMapper
	ignore  *IgnoreList
	now     func() time.Time
	observe func(path string)
}

func New(root string, mapper *sync.RoleMapper, opts ...Option) (*Provider, error) {
	if !utils.DirExists(root) {
		return nil, fmt.Errorf("local root %s is not a directory", root)
	}
	p := &Provider{
		root:   root,
		mapper: mapper,
		ignore: NewIgnoreList(root),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ObserveWrites registers fn to be called with every absolute path the provider writes or removes
func (p *Provider) ObserveWrites(fn func(path string)) {
	p.observe = fn
}

func (p *Provider) FetchTree(ctx context.Context, prev *sync.SyncNode) (*sync.SyncNode, error) {
	p.ignore.Load()

	known := make(map[string]*sync.SyncNode)
	if prev != nil {
		for _, n := range sync.Flatten(prev) {
			if n.LocalMeta != nil && !n.IsRoot() {
				known[n.LocalMeta.Path] = n
			}
		}
	}

	root := sync.NewLocalRoot()
	if prev != nil {
		root.ID = prev.ID
		root.SyncedAt = prev.SyncedAt
	}

	byPath := map[string]*sync.SyncNode{"": root}
	seen := mapset.NewThreadUnsafeSet[string]()

	err := filepath.WalkDir(p.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			if abs == p.root {
				return err
			}
			slog.Warn("local walk", "path", abs, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if abs == p.root {
			return nil
		}

		rel, err := filepath.Rel(p.root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		var nodeType sync.NodeType
		switch {
		case d.IsDir():
			rel += "/"
			if p.ignore.ShouldIgnore(rel) {
				return filepath.SkipDir
			}
			nodeType = sync.NodeTypeGroup
		case d.Type().IsRegular():
			if p.ignore.ShouldIgnore(rel) || !utils.IsTextFile(abs) {
				return nil
			}
			nodeType = sync.NodeTypeNote
		default:
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("local stat", "path", abs, "error", err)
			return nil
		}

		role := p.mapper.Match(rel)
		if role == "" && nodeType == sync.NodeTypeNote {
			return nil
		}

		node := p.refresh(known[rel], nodeType, role, rel, info.ModTime())
		parentOf(byPath, rel).AddChild(node)
		byPath[rel] = node
		seen.Add(rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", p.root, err)
	}

	if prev != nil {
		p.carryVanished(prev, seen, byPath)
	}
	pruneScaffolding(root)

	return root, nil
}

// refresh builds the current node for a path, keeping identity and stamp of the previous one
func (p *Provider) refresh(prev *sync.SyncNode, nodeType sync.NodeType, role, rel string, modTime time.Time) *sync.SyncNode {
	node := sync.NewNode(nodeType, role)
	node.LocalMeta = &sync.LocalMeta{Path: rel, UpdatedAt: modTime.UTC()}
	if prev == nil {
		return node
	}

	node.ID = prev.ID
	node.SyncedAt = prev.SyncedAt
	// a directory's mtime moves with its entries, only its existence matters
	if nodeType == sync.NodeTypeGroup && prev.LocalMeta != nil && !prev.LocalMeta.Deleted {
		node.LocalMeta.UpdatedAt = prev.LocalMeta.UpdatedAt
	}
	return node
}

// carryVanished keeps previously known nodes that are gone from disk, marked deleted
func (p *Provider) carryVanished(prev *sync.SyncNode, seen mapset.Set[string], byPath map[string]*sync.SyncNode) {
	now := p.now().UTC()
	sync.Walk(prev, func(n *sync.SyncNode) bool {
		if n.IsRoot() || n.LocalMeta == nil || seen.Contains(n.LocalMeta.Path) {
			return true
		}

		gone := sync.NewNode(n.Type, n.Role)
		gone.ID = n.ID
		gone.SyncedAt = n.SyncedAt
		gone.LocalMeta = &sync.LocalMeta{Path: n.LocalMeta.Path, UpdatedAt: n.LocalMeta.UpdatedAt, Deleted: true}
		if !n.LocalMeta.Deleted {
			gone.LocalMeta.UpdatedAt = now
			slog.Debug("local vanished", "path", n.LocalMeta.Path)
		}

		parentOf(byPath, n.LocalMeta.Path).AddChild(gone)
		byPath[n.LocalMeta.Path] = gone
		seen.Add(n.LocalMeta.Path)
		return true
	})
}

// parentOf returns the node of the closest directory above rel
func parentOf(byPath map[string]*sync.SyncNode, rel string) *sync.SyncNode {
	dir := path.Dir(strings.TrimSuffix(rel, "/"))
	for dir != "." && dir != "/" {
		if n, ok := byPath[dir+"/"]; ok {
			return n
		}
		dir = path.Dir(dir)
	}
	return byPath[""]
}

// pruneScaffolding drops role-less directories with no role below them
func pruneScaffolding(n *sync.SyncNode) bool {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if pruneScaffolding(c) {
			kept = append(kept, c)
		} else {
			c.Parent = nil
		}
	}
	n.Children = kept
	return n.IsRoot() || n.Role != "" || len(n.Children) > 0
}

func (p *Provider) ActionDownstream(ctx context.Context, action *sync.SyncAction) error {
	if action.Type != sync.ActionFetch || action.Node.Type != sync.NodeTypeNote {
		return nil
	}
	meta := action.Node.LocalMeta
	if meta == nil || meta.Deleted {
		return fmt.Errorf("%w: no local file for %s", sync.ErrStructural, action.Node)
	}

	abs, err := utils.SafeJoin(p.root, meta.Path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", meta.Path, err)
	}
	action.Content = string(data)
	return nil
}

func (p *Provider) ActionUpstream(ctx context.Context, action *sync.SyncAction) error {
	switch action.Type {
	case sync.ActionDelete:
		return p.delete(action.Node)
	case sync.ActionFetch:
		return p.write(action)
	default:
		return fmt.Errorf("%w: cannot apply %s locally", sync.ErrStructural, action.Type)
	}
}

func (p *Provider) delete(node *sync.SyncNode) error {
	meta := node.LocalMeta
	if meta == nil || meta.Deleted {
		return nil
	}

	abs, err := utils.SafeJoin(p.root, meta.Path)
	if err != nil {
		return err
	}

	if node.Type == sync.NodeTypeGroup {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", meta.Path, err)
	}
	p.notify(abs)

	meta.Deleted = true
	meta.UpdatedAt = p.now().UTC()
	slog.Info("local delete", "path", meta.Path)
	return nil
}

func (p *Provider) write(action *sync.SyncAction) error {
	node := action.Node

	rel := ""
	if action.ShouldCreate() {
		var err error
		if rel, err = p.newPath(node); err != nil {
			return err
		}
	} else {
		rel = node.LocalMeta.Path
	}

	abs, err := utils.SafeJoin(p.root, rel)
	if err != nil {
		return err
	}

	if node.Type == sync.NodeTypeNote {
		if err := utils.EnsureParent(abs); err != nil {
			return err
		}
		p.notify(abs)
		if err := utils.WriteFileAtomic(abs, []byte(action.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	} else {
		p.notify(abs)
		if err := utils.EnsureDir(abs); err != nil {
			return fmt.Errorf("create %s: %w", rel, err)
		}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	node.LocalMeta = &sync.LocalMeta{Path: rel, UpdatedAt: info.ModTime().UTC()}
	slog.Info("local write", "path", rel, "bytes", len(action.Content))
	return nil
}

// newPath places a node below its closest live local ancestor. Taken names get a numeric suffix.
func (p *Provider) newPath(node *sync.SyncNode) (string, error) {
	if node.RemoteMeta == nil {
		return "", fmt.Errorf("%w: nothing to name %s after", sync.ErrStructural, node)
	}

	parentDir := ""
	for a := node.Parent; a != nil; a = a.Parent {
		if a.LocalMeta != nil && !a.LocalMeta.Deleted {
			parentDir = a.LocalMeta.Path
			break
		}
	}
	if parentDir != "" && !strings.HasSuffix(parentDir, "/") {
		parentDir = path.Dir(parentDir) + "/"
	}

	name := utils.SanitizeFileName(node.RemoteMeta.Title)
	ext, suffix := noteExt, ""
	if node.Type != sync.NodeTypeNote {
		ext, suffix = "", "/"
	}

	for i := 1; ; i++ {
		candidate := name
		if i > 1 {
			candidate += " (" + strconv.Itoa(i) + ")"
		}
		rel := parentDir + candidate + ext
		abs, err := utils.SafeJoin(p.root, rel)
		if err != nil {
			return "", err
		}
		if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
			return rel + suffix, nil
		}
	}
}

func (p *Provider) notify(abs string) {
	if p.observe != nil {
		p.observe(abs)
	}
}
