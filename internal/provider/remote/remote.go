package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/openmined/notesync/internal/docsdk"
	"github.com/openmined/notesync/internal/profile"
	"github.com/openmined/notesync/internal/sync"
)

// Pages is the part of the document service the provider needs
type Pages interface {
	Get(ctx context.Context, id string) (*docsdk.Page, error)
	Children(ctx context.Context, id string) ([]*docsdk.Page, error)
	Content(ctx context.Context, id string) (string, error)
	Create(ctx context.Context, params *docsdk.CreatePageParams) (*docsdk.Page, error)
	Update(ctx context.Context, id string, params *docsdk.UpdatePageParams) (*docsdk.Page, error)
	Archive(ctx context.Context, id string) (*docsdk.Page, error)
	Purge()
}

type Config struct {
	RootID string
	Mapper *sync.RoleMapper
	// Types is the node type per role
	Types map[string]sync.NodeType
	// Containers is the title of the collection holding each role
	Containers map[string]string
	Strategies *sync.StrategyRegistry
	Clock      func() time.Time
}

// Provider is the document service side of the sync. The root's children
// are collections, the collections' children are items.
type Provider struct {
	pages   Pages
	cfg     Config
	mapping sync.ContentMapping
}

func New(pages Pages, cfg Config) (*Provider, error) {
	if cfg.RootID == "" {
		return nil, errors.New("remote root id is empty")
	}
	if cfg.Mapper == nil || cfg.Strategies == nil {
		return nil, errors.New("remote provider needs a role mapper and strategies")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Provider{pages: pages, cfg: cfg, mapping: sync.ContentMapping{}}, nil
}

// FromProfile wires a provider and its strategy registry from a profile
func FromProfile(pages Pages, rootID string, prof *profile.Profile) (*Provider, error) {
	mapper, err := prof.RemoteMapper()
	if err != nil {
		return nil, err
	}

	strategies := sync.NewStrategyRegistry()
	containers := make(map[string]string, len(prof.Resources))
	for role, res := range prof.Resources {
		strategies.Register(role, NewCollectionStrategy(pages, res.Relation))
		containers[role] = res.Container
	}

	return New(pages, Config{
		RootID:     rootID,
		Mapper:     mapper,
		Types:      prof.Types(),
		Containers: containers,
		Strategies: strategies,
	})
}

// Strategies returns the registry used for upstream writes
func (p *Provider) Strategies() *sync.StrategyRegistry {
	return p.cfg.Strategies
}

// Mapping returns the container mapping of the last fetch
func (p *Provider) Mapping() sync.ContentMapping {
	return p.mapping
}

// EnsureContainers creates the missing container collections below the root.
// It returns the titles it created.
func (p *Provider) EnsureContainers(ctx context.Context) ([]string, error) {
	children, err := p.pages.Children(ctx, p.cfg.RootID)
	if err != nil {
		return nil, fmt.Errorf("list remote root: %w", err)
	}

	existing := make(map[string]bool)
	for _, c := range children {
		if c.Kind == docsdk.KindCollection && !c.Archived {
			existing[c.Title] = true
		}
	}

	var titles []string
	for _, title := range p.cfg.Containers {
		if !existing[title] && !slices.Contains(titles, title) {
			titles = append(titles, title)
		}
	}
	slices.Sort(titles)

	for _, title := range titles {
		if _, err := p.pages.Create(ctx, &docsdk.CreatePageParams{
			ParentID: p.cfg.RootID,
			Title:    title,
			Kind:     docsdk.KindCollection,
		}); err != nil {
			return nil, fmt.Errorf("create container %q: %w", title, err)
		}
		slog.Info("remote container created", "title", title)
	}
	return titles, nil
}

func (p *Provider) FetchTree(ctx context.Context, prev *sync.SyncNode) (*sync.SyncNode, error) {
	p.pages.Purge()

	rootPage, err := p.pages.Get(ctx, p.cfg.RootID)
	if err != nil {
		return nil, fmt.Errorf("remote root %s: %w", p.cfg.RootID, err)
	}

	known := make(map[string]*sync.SyncNode)
	if prev != nil {
		for _, n := range sync.Flatten(prev) {
			if n.RemoteMeta != nil && !n.IsRoot() {
				known[n.RemoteMeta.ID] = n
			}
		}
	}

	root := sync.NewRemoteRoot(rootPage.ID)
	root.RemoteMeta = metaFromPage(rootPage)
	if prev != nil {
		root.ID = prev.ID
		root.SyncedAt = prev.SyncedAt
	}

	byID := map[string]*sync.SyncNode{rootPage.ID: root}
	mapping := sync.ContentMapping{}

	collections, err := p.pages.Children(ctx, rootPage.ID)
	if err != nil {
		return nil, fmt.Errorf("list remote root: %w", err)
	}

	for _, coll := range collections {
		if coll.Kind != docsdk.KindCollection {
			continue
		}

		collNode := p.node(known[coll.ID], coll, coll.Title)
		root.AddChild(collNode)
		byID[coll.ID] = collNode
		if !coll.Archived {
			p.mapContainer(mapping, collNode)
		}

		items, err := p.pages.Children(ctx, coll.ID)
		if err != nil {
			return nil, fmt.Errorf("list collection %q: %w", coll.Title, err)
		}
		for _, item := range items {
			breadcrumb := coll.Title + "/" + item.Title
			if p.cfg.Mapper.Match(breadcrumb) == "" {
				continue
			}
			itemNode := p.node(known[item.ID], item, breadcrumb)
			collNode.AddChild(itemNode)
			byID[item.ID] = itemNode
		}
	}

	if prev != nil {
		p.carryVanished(prev, byID)
	}

	for role, title := range p.cfg.Containers {
		if _, ok := mapping[role]; !ok {
			slog.Warn("remote container missing", "role", role, "title", title)
		}
	}
	p.mapping = mapping

	return root, nil
}

func (p *Provider) node(prev *sync.SyncNode, page *docsdk.Page, breadcrumb string) *sync.SyncNode {
	role := p.cfg.Mapper.Match(breadcrumb)

	nodeType, ok := p.cfg.Types[role]
	if !ok {
		nodeType = sync.NodeTypeNote
		if page.Kind == docsdk.KindCollection {
			nodeType = sync.NodeTypeGroup
		}
	}

	node := sync.NewNode(nodeType, role)
	node.RemoteMeta = metaFromPage(page)
	if prev != nil {
		node.ID = prev.ID
		node.SyncedAt = prev.SyncedAt
	}
	return node
}

// mapContainer records the collection as container for every role stored in it
func (p *Provider) mapContainer(mapping sync.ContentMapping, coll *sync.SyncNode) {
	for role, title := range p.cfg.Containers {
		if title == coll.RemoteMeta.Title {
			if _, taken := mapping[role]; !taken {
				mapping[role] = coll
			}
		}
	}
}

// carryVanished keeps role nodes whose pages are gone entirely, marked deleted
func (p *Provider) carryVanished(prev *sync.SyncNode, byID map[string]*sync.SyncNode) {
	now := p.cfg.Clock().UTC()
	sync.Walk(prev, func(n *sync.SyncNode) bool {
		if n.IsRoot() || n.Role == "" || n.RemoteMeta == nil {
			return true
		}
		if _, ok := byID[n.RemoteMeta.ID]; ok {
			return true
		}

		gone := sync.NewNode(n.Type, n.Role)
		gone.ID = n.ID
		gone.SyncedAt = n.SyncedAt
		gone.RemoteMeta = n.RemoteMeta
		if !n.RemoteMeta.Deleted {
			gone.RemoteMeta = &sync.RemoteMeta{
				ID:        n.RemoteMeta.ID,
				Title:     n.RemoteMeta.Title,
				UpdatedAt: now,
				Deleted:   true,
				Relations: n.RemoteMeta.Relations,
			}
			slog.Debug("remote vanished", "id", n.RemoteMeta.ID, "title", n.RemoteMeta.Title)
		}

		var parent *sync.SyncNode
		if n.Parent != nil && n.Parent.RemoteMeta != nil {
			parent = byID[n.Parent.RemoteMeta.ID]
		}
		if parent == nil {
			parent = byID[p.cfg.RootID]
		}
		parent.AddChild(gone)
		byID[n.RemoteMeta.ID] = gone
		return true
	})
}

func (p *Provider) ActionDownstream(ctx context.Context, action *sync.SyncAction) error {
	if action.Type != sync.ActionFetch || action.Node.Type != sync.NodeTypeNote {
		return nil
	}
	meta := action.Node.RemoteMeta
	if meta == nil || meta.Deleted {
		return fmt.Errorf("%w: no remote page for %s", sync.ErrStructural, action.Node)
	}

	content, err := p.pages.Content(ctx, meta.ID)
	if err != nil {
		return fmt.Errorf("export %s: %w", meta.Title, err)
	}
	action.Content = content
	return nil
}

func (p *Provider) ActionUpstream(ctx context.Context, action *sync.SyncAction) error {
	node := action.Node
	switch action.Type {
	case sync.ActionDelete:
		return p.archive(ctx, node)
	case sync.ActionFetch:
	default:
		return fmt.Errorf("%w: cannot apply %s remotely", sync.ErrStructural, action.Type)
	}

	strategy, err := p.cfg.Strategies.Get(node.Role)
	if err != nil {
		return err
	}

	var meta *sync.RemoteMeta
	if action.ShouldCreate() {
		meta, err = strategy.Create(ctx, node, action.Content, p.mapping)
	} else {
		meta, err = strategy.Update(ctx, node, action.Content, p.mapping)
	}
	if err != nil {
		return err
	}

	node.RemoteMeta = meta
	slog.Info("remote write", "id", meta.ID, "title", meta.Title, "role", node.Role)
	return nil
}

func (p *Provider) archive(ctx context.Context, node *sync.SyncNode) error {
	meta := node.RemoteMeta
	if meta == nil || meta.Deleted {
		return nil
	}

	page, err := p.pages.Archive(ctx, meta.ID)
	switch {
	case errors.Is(err, docsdk.ErrPageNotFound):
		meta.UpdatedAt = p.cfg.Clock().UTC()
	case err != nil:
		return fmt.Errorf("archive %s: %w", meta.Title, err)
	default:
		meta.UpdatedAt = page.UpdatedAt.UTC()
	}

	meta.Deleted = true
	slog.Info("remote archive", "id", meta.ID, "title", meta.Title)
	return nil
}
