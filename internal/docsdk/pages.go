package docsdk

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/imroc/req/v3"
)

const v1Pages = "/api/v1/pages"

// PagesAPI covers the page endpoints. Page metadata is cached briefly and
// dropped on every write the client makes.
type PagesAPI struct {
	client *req.Client
	cache  *expirable.LRU[string, *Page]
}

func newPagesAPI(client *req.Client, cache *expirable.LRU[string, *Page]) *PagesAPI {
	return &PagesAPI{client: client, cache: cache}
}

func pagePath(id string, sub ...string) string {
	p := v1Pages + "/" + url.PathEscape(id)
	for _, s := range sub {
		p += "/" + s
	}
	return p
}

// Get returns page metadata, from the cache when possible
func (p *PagesAPI) Get(ctx context.Context, id string) (*Page, error) {
	if page, ok := p.cache.Get(id); ok {
		return page, nil
	}

	var page *Page
	resp, err := p.client.R().
		SetContext(ctx).
		SetSuccessResult(&page).
		Get(pagePath(id))

	if err := handleAPIError(resp, err, "page get"); err != nil {
		return nil, err
	}

	p.cache.Add(page.ID, page)
	return page, nil
}

// Children lists the direct children of a page, archived ones included
func (p *PagesAPI) Children(ctx context.Context, id string) ([]*Page, error) {
	var result ChildrenResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		Get(pagePath(id, "children"))

	if err := handleAPIError(resp, err, "page children"); err != nil {
		return nil, err
	}

	for _, page := range result.Pages {
		p.cache.Add(page.ID, page)
	}
	return result.Pages, nil
}

func (p *PagesAPI) Content(ctx context.Context, id string) (string, error) {
	var result ContentResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		Get(pagePath(id, "content"))

	if err := handleAPIError(resp, err, "page content"); err != nil {
		return "", err
	}
	return result.Content, nil
}

func (p *PagesAPI) Create(ctx context.Context, params *CreatePageParams) (*Page, error) {
	if params.ParentID == "" {
		return nil, fmt.Errorf("page create: parent id missing")
	}

	var page *Page
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&page).
		Post(v1Pages)

	if err := handleAPIError(resp, err, "page create"); err != nil {
		return nil, err
	}

	p.cache.Remove(params.ParentID)
	p.cache.Add(page.ID, page)
	return page, nil
}

func (p *PagesAPI) Update(ctx context.Context, id string, params *UpdatePageParams) (*Page, error) {
	p.cache.Remove(id)

	var page *Page
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&page).
		Patch(pagePath(id))

	if err := handleAPIError(resp, err, "page update"); err != nil {
		return nil, err
	}

	p.cache.Add(page.ID, page)
	return page, nil
}

// Archive hides a page and its descendants. The returned page carries the archive time.
func (p *PagesAPI) Archive(ctx context.Context, id string) (*Page, error) {
	p.cache.Remove(id)

	var page *Page
	resp, err := p.client.R().
		SetContext(ctx).
		SetSuccessResult(&page).
		Delete(pagePath(id))

	if err := handleAPIError(resp, err, "page archive"); err != nil {
		return nil, err
	}
	return page, nil
}

// Purge drops all cached metadata
func (p *PagesAPI) Purge() {
	p.cache.Purge()
}
