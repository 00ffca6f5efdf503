package docsdk

import "time"

type PageKind string

const (
	KindCollection PageKind = "collection"
	KindPage       PageKind = "page"
)

// Page is the metadata of one document service page
type Page struct {
	ID        string              `json:"id"`
	ParentID  string              `json:"parent_id,omitempty"`
	Title     string              `json:"title"`
	Kind      PageKind            `json:"kind"`
	Relations map[string][]string `json:"relations,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
	Archived  bool                `json:"archived,omitempty"`
}

type CreatePageParams struct {
	ParentID  string              `json:"parent_id"`
	Title     string              `json:"title"`
	Kind      PageKind            `json:"kind"`
	Relations map[string][]string `json:"relations,omitempty"`
	Content   string              `json:"content,omitempty"`
}

// UpdatePageParams only changes the fields that are set
type UpdatePageParams struct {
	Title     *string             `json:"title,omitempty"`
	Relations map[string][]string `json:"relations,omitempty"`
	Content   *string             `json:"content,omitempty"`
}

type ChildrenResponse struct {
	Pages []*Page `json:"pages"`
}

type ContentResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}
