package remote

import (
	"context"
	"fmt"

	"github.com/openmined/notesync/internal/docsdk"
	"github.com/openmined/notesync/internal/sync"
)

// CollectionStrategy creates entities as pages of the role's container
// collection. With a relation role set, the page links to the closest
// ancestor of that role.
type CollectionStrategy struct {
	pages    Pages
	relation string
}

func NewCollectionStrategy(pages Pages, relation string) *CollectionStrategy {
	return &CollectionStrategy{pages: pages, relation: relation}
}

func (s *CollectionStrategy) Create(ctx context.Context, node *sync.SyncNode, content string, mapping sync.ContentMapping) (*sync.RemoteMeta, error) {
	container, err := mapping.Container(node.Role)
	if err != nil {
		return nil, err
	}
	relations, err := s.relations(node)
	if err != nil {
		return nil, err
	}

	params := &docsdk.CreatePageParams{
		ParentID:  container.RemoteMeta.ID,
		Title:     node.Title(),
		Kind:      docsdk.KindPage,
		Relations: relations,
	}
	if node.Type == sync.NodeTypeNote {
		params.Content = content
	}

	page, err := s.pages.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return metaFromPage(page), nil
}

func (s *CollectionStrategy) Update(ctx context.Context, node *sync.SyncNode, content string, _ sync.ContentMapping) (*sync.RemoteMeta, error) {
	id := node.RemoteMeta.ID

	// groups carry no content, a rename locally is a new node
	if node.Type != sync.NodeTypeNote {
		page, err := s.pages.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return metaFromPage(page), nil
	}

	relations, err := s.relations(node)
	if err != nil {
		return nil, err
	}
	page, err := s.pages.Update(ctx, id, &docsdk.UpdatePageParams{
		Content:   &content,
		Relations: relations,
	})
	if err != nil {
		return nil, err
	}
	return metaFromPage(page), nil
}

func (s *CollectionStrategy) relations(node *sync.SyncNode) (map[string][]string, error) {
	if s.relation == "" {
		return nil, nil
	}
	for a := node.Parent; a != nil; a = a.Parent {
		if a.Role != s.relation {
			continue
		}
		if a.RemoteMeta == nil || a.RemoteMeta.Deleted || a.RemoteMeta.ID == "" {
			return nil, fmt.Errorf("%w: %s %s has no remote page yet", sync.ErrStructural, s.relation, a)
		}
		return map[string][]string{s.relation: {a.RemoteMeta.ID}}, nil
	}
	return nil, fmt.Errorf("%w: %s has no %s ancestor", sync.ErrStructural, node, s.relation)
}

func metaFromPage(page *docsdk.Page) *sync.RemoteMeta {
	meta := &sync.RemoteMeta{
		ID:        page.ID,
		Title:     page.Title,
		UpdatedAt: page.UpdatedAt.UTC(),
		Deleted:   page.Archived,
	}
	if len(page.Relations) > 0 {
		meta.Relations = make(map[string][]string, len(page.Relations))
		for role, ids := range page.Relations {
			meta.Relations[role] = append([]string(nil), ids...)
		}
	}
	return meta
}
