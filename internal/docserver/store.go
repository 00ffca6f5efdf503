package docserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/notesync/internal/db"
	"github.com/openmined/notesync/internal/docsdk"
)

const pageSchema = `
CREATE TABLE IF NOT EXISTS pages (
    id TEXT PRIMARY KEY,
    parent_id TEXT REFERENCES pages(id),
    title TEXT NOT NULL,
    kind TEXT NOT NULL,
    relations TEXT NOT NULL DEFAULT '{}',
    content TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    archived INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pages_parent ON pages(parent_id);
`

var (
	ErrNotFound      = errors.New("page not found")
	ErrArchived      = errors.New("page archived")
	ErrInvalidParent = errors.New("invalid parent")
)

type dbPage struct {
	ID        string         `db:"id"`
	ParentID  sql.NullString `db:"parent_id"`
	Title     string         `db:"title"`
	Kind      string         `db:"kind"`
	Relations string         `db:"relations"`
	Content   string         `db:"content"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
	Archived  bool           `db:"archived"`
}

func (p *dbPage) toPage() (*docsdk.Page, error) {
	updatedAt, err := time.Parse(time.RFC3339Nano, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("page %s updated_at: %w", p.ID, err)
	}
	page := &docsdk.Page{
		ID:        p.ID,
		ParentID:  p.ParentID.String,
		Title:     p.Title,
		Kind:      docsdk.PageKind(p.Kind),
		UpdatedAt: updatedAt,
		Archived:  p.Archived,
	}
	if p.Relations != "" && p.Relations != "{}" {
		if err := json.Unmarshal([]byte(p.Relations), &page.Relations); err != nil {
			return nil, fmt.Errorf("page %s relations: %w", p.ID, err)
		}
	}
	return page, nil
}

// PageStore keeps pages in sqlite
type PageStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPageStore(path string) (*PageStore, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithSchema(pageSchema))
	if err != nil {
		return nil, fmt.Errorf("open page db: %w", err)
	}
	return &PageStore{db: conn, now: time.Now}, nil
}

func (s *PageStore) Close() error {
	return s.db.Close()
}

func (s *PageStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *PageStore) get(ctx context.Context, q sqlx.QueryerContext, id string) (*dbPage, error) {
	var row dbPage
	err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM pages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *PageStore) Get(ctx context.Context, id string) (*docsdk.Page, error) {
	row, err := s.get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return row.toPage()
}

// Children lists direct children ordered by creation time. Archived pages are included.
func (s *PageStore) Children(ctx context.Context, id string) ([]*docsdk.Page, error) {
	if _, err := s.get(ctx, s.db, id); err != nil {
		return nil, err
	}

	var rows []dbPage
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM pages WHERE parent_id = ? ORDER BY created_at, id`, id); err != nil {
		return nil, err
	}

	pages := make([]*docsdk.Page, 0, len(rows))
	for i := range rows {
		page, err := rows[i].toPage()
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (s *PageStore) Content(ctx context.Context, id string) (string, error) {
	row, err := s.get(ctx, s.db, id)
	if err != nil {
		return "", err
	}
	return row.Content, nil
}

// CreateRoot adds a parentless collection to hang a workspace off
func (s *PageStore) CreateRoot(ctx context.Context, title string) (*docsdk.Page, error) {
	return s.insert(ctx, s.db, "", title, docsdk.KindCollection, nil, "")
}

func (s *PageStore) Create(ctx context.Context, params *docsdk.CreatePageParams) (*docsdk.Page, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	parent, err := s.get(ctx, tx, params.ParentID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidParent, params.ParentID)
	} else if err != nil {
		return nil, err
	}
	if parent.Archived {
		return nil, fmt.Errorf("%w: %s is archived", ErrInvalidParent, params.ParentID)
	}
	if parent.Kind != string(docsdk.KindCollection) {
		return nil, fmt.Errorf("%w: %s is not a collection", ErrInvalidParent, params.ParentID)
	}

	page, err := s.insert(ctx, tx, params.ParentID, params.Title, params.Kind, params.Relations, params.Content)
	if err != nil {
		return nil, err
	}
	return page, tx.Commit()
}

func (s *PageStore) insert(ctx context.Context, ex sqlx.ExtContext, parentID, title string, kind docsdk.PageKind, relations map[string][]string, content string) (*docsdk.Page, error) {
	rel, err := encodeRelations(relations)
	if err != nil {
		return nil, err
	}
	now := s.stamp()
	row := dbPage{
		ID:        uuid.NewString(),
		ParentID:  sql.NullString{String: parentID, Valid: parentID != ""},
		Title:     strings.TrimSpace(title),
		Kind:      string(kind),
		Relations: rel,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = sqlx.NamedExecContext(ctx, ex, `
		INSERT INTO pages (id, parent_id, title, kind, relations, content, created_at, updated_at, archived)
		VALUES (:id, :parent_id, :title, :kind, :relations, :content, :created_at, :updated_at, :archived)`, &row)
	if err != nil {
		return nil, fmt.Errorf("insert page: %w", err)
	}
	return row.toPage()
}

func (s *PageStore) Update(ctx context.Context, id string, params *docsdk.UpdatePageParams) (*docsdk.Page, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if row.Archived {
		return nil, ErrArchived
	}

	if params.Title != nil {
		row.Title = strings.TrimSpace(*params.Title)
	}
	if params.Content != nil {
		row.Content = *params.Content
	}
	if params.Relations != nil {
		if row.Relations, err = encodeRelations(params.Relations); err != nil {
			return nil, err
		}
	}
	row.UpdatedAt = s.stamp()

	if _, err := tx.NamedExecContext(ctx, `
		UPDATE pages SET title = :title, content = :content, relations = :relations, updated_at = :updated_at
		WHERE id = :id`, row); err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.toPage()
}

// Archive marks the page and all of its descendants archived. Archiving twice keeps the first stamp.
func (s *PageStore) Archive(ctx context.Context, id string) (*docsdk.Page, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if row.Archived {
		return row.toPage()
	}

	now := s.stamp()
	if _, err := tx.ExecContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM pages WHERE id = ?
			UNION ALL
			SELECT p.id FROM pages p JOIN subtree s ON p.parent_id = s.id
		)
		UPDATE pages SET archived = 1, updated_at = ?
		WHERE id IN (SELECT id FROM subtree) AND archived = 0`, id, now); err != nil {
		return nil, fmt.Errorf("archive page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	row.Archived = true
	row.UpdatedAt = now
	return row.toPage()
}

func encodeRelations(relations map[string][]string) (string, error) {
	if len(relations) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(relations)
	if err != nil {
		return "", fmt.Errorf("encode relations: %w", err)
	}
	return string(raw), nil
}
