package sync

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/notesync/internal/db"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS sync_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_nodes (
    tree TEXT NOT NULL,
    seq INTEGER NOT NULL,
    parent_seq INTEGER,
    id TEXT NOT NULL,
    type TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT '',
    local_path TEXT,
    local_updated_at TEXT,
    local_deleted INTEGER NOT NULL DEFAULT 0,
    remote_id TEXT,
    remote_title TEXT NOT NULL DEFAULT '',
    remote_updated_at TEXT,
    remote_deleted INTEGER NOT NULL DEFAULT 0,
    remote_relations TEXT,
    synced_at TEXT, -- RFC3339 with nanoseconds
    PRIMARY KEY (tree, seq)
);

CREATE INDEX IF NOT EXISTS idx_sync_nodes_id ON sync_nodes(id);
`

const (
	treeLocal  = "local"
	treeRemote = "remote"
)

type dbSyncNode struct {
	Tree            string         `db:"tree"`
	Seq             int64          `db:"seq"`
	ParentSeq       sql.NullInt64  `db:"parent_seq"`
	ID              string         `db:"id"`
	Type            string         `db:"type"`
	Role            string         `db:"role"`
	LocalPath       sql.NullString `db:"local_path"`
	LocalUpdatedAt  sql.NullString `db:"local_updated_at"`
	LocalDeleted    bool           `db:"local_deleted"`
	RemoteID        sql.NullString `db:"remote_id"`
	RemoteTitle     string         `db:"remote_title"`
	RemoteUpdatedAt sql.NullString `db:"remote_updated_at"`
	RemoteDeleted   bool           `db:"remote_deleted"`
	RemoteRelations sql.NullString `db:"remote_relations"`
	SyncedAt        sql.NullString `db:"synced_at"`
}

// SQLiteStore keeps the state as one row per node
type SQLiteStore struct {
	db   *sqlx.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1), db.WithSchema(stateSchema))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &SQLiteStore{db: conn, path: path}, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (*SyncData, error) {
	var meta []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &meta, "SELECT key, value FROM sync_meta"); err != nil {
		return nil, fmt.Errorf("query state meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrNoState
	}

	data := &SyncData{}
	for _, kv := range meta {
		switch kv.Key {
		case "version":
			v, err := strconv.Atoi(kv.Value)
			if err != nil {
				return nil, fmt.Errorf("state version %q: %w", kv.Value, err)
			}
			data.Version = v
		case "root_dir":
			data.RootDir = kv.Value
		case "remote_root":
			data.RemoteRoot = kv.Value
		}
	}

	var rows []dbSyncNode
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM sync_nodes ORDER BY tree, seq"); err != nil {
		return nil, fmt.Errorf("query state nodes: %w", err)
	}

	trees := map[string]map[int64]*SyncNode{treeLocal: {}, treeRemote: {}}
	for _, row := range rows {
		node, err := row.toNode()
		if err != nil {
			return nil, fmt.Errorf("state node %s: %w", row.ID, err)
		}

		nodes, ok := trees[row.Tree]
		if !ok {
			return nil, fmt.Errorf("state node %s: unknown tree %q", row.ID, row.Tree)
		}
		nodes[row.Seq] = node

		if !row.ParentSeq.Valid {
			if row.Tree == treeLocal {
				data.LocalTree = node
			} else {
				data.RemoteTree = node
			}
			continue
		}
		parent, ok := nodes[row.ParentSeq.Int64]
		if !ok {
			return nil, fmt.Errorf("state node %s: missing parent %d", row.ID, row.ParentSeq.Int64)
		}
		parent.AddChild(node)
	}

	if err := checkLoaded(data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLiteStore) Save(ctx context.Context, data *SyncData) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_nodes"); err != nil {
		return fmt.Errorf("clear state nodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_meta"); err != nil {
		return fmt.Errorf("clear state meta: %w", err)
	}

	meta := map[string]string{
		"version":     strconv.Itoa(data.Version),
		"root_dir":    data.RootDir,
		"remote_root": data.RemoteRoot,
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO sync_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("write state meta %s: %w", k, err)
		}
	}

	const insert = `INSERT INTO sync_nodes (
		tree, seq, parent_seq, id, type, role,
		local_path, local_updated_at, local_deleted,
		remote_id, remote_title, remote_updated_at, remote_deleted, remote_relations,
		synced_at
	) VALUES (
		:tree, :seq, :parent_seq, :id, :type, :role,
		:local_path, :local_updated_at, :local_deleted,
		:remote_id, :remote_title, :remote_updated_at, :remote_deleted, :remote_relations,
		:synced_at
	)`

	for tree, root := range map[string]*SyncNode{treeLocal: data.LocalTree, treeRemote: data.RemoteTree} {
		rows, err := flattenRows(tree, root)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
				return fmt.Errorf("write state node %s: %w", row.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// flattenRows numbers nodes in pre-order so a parent always precedes its children
func flattenRows(tree string, root *SyncNode) ([]*dbSyncNode, error) {
	var rows []*dbSyncNode
	seqs := make(map[*SyncNode]int64)

	var err error
	Walk(root, func(n *SyncNode) bool {
		if err != nil {
			return false
		}
		var row *dbSyncNode
		row, err = fromNode(tree, n)
		if err != nil {
			return false
		}
		row.Seq = int64(len(rows))
		seqs[n] = row.Seq
		if n != root && n.Parent != nil {
			row.ParentSeq = sql.NullInt64{Int64: seqs[n.Parent], Valid: true}
		}
		rows = append(rows, row)
		return true
	})
	return rows, err
}

func fromNode(tree string, n *SyncNode) (*dbSyncNode, error) {
	row := &dbSyncNode{
		Tree: tree,
		ID:   n.ID,
		Type: string(n.Type),
		Role: n.Role,
	}
	if m := n.LocalMeta; m != nil {
		row.LocalPath = sql.NullString{String: m.Path, Valid: true}
		row.LocalUpdatedAt = formatTime(m.UpdatedAt)
		row.LocalDeleted = m.Deleted
	}
	if m := n.RemoteMeta; m != nil {
		row.RemoteID = sql.NullString{String: m.ID, Valid: true}
		row.RemoteTitle = m.Title
		row.RemoteUpdatedAt = formatTime(m.UpdatedAt)
		row.RemoteDeleted = m.Deleted
		if len(m.Relations) > 0 {
			raw, err := json.Marshal(m.Relations)
			if err != nil {
				return nil, fmt.Errorf("encode relations of %s: %w", n.ID, err)
			}
			row.RemoteRelations = sql.NullString{String: string(raw), Valid: true}
		}
	}
	if n.SyncedAt != nil {
		row.SyncedAt = formatTime(*n.SyncedAt)
	}
	return row, nil
}

func (row *dbSyncNode) toNode() (*SyncNode, error) {
	n := &SyncNode{
		ID:   row.ID,
		Type: NodeType(row.Type),
		Role: row.Role,
	}

	if row.LocalPath.Valid {
		t, err := parseTime(row.LocalUpdatedAt)
		if err != nil {
			return nil, err
		}
		n.LocalMeta = &LocalMeta{Path: row.LocalPath.String, UpdatedAt: t, Deleted: row.LocalDeleted}
	}

	if row.RemoteID.Valid {
		t, err := parseTime(row.RemoteUpdatedAt)
		if err != nil {
			return nil, err
		}
		n.RemoteMeta = &RemoteMeta{
			ID:        row.RemoteID.String,
			Title:     row.RemoteTitle,
			UpdatedAt: t,
			Deleted:   row.RemoteDeleted,
		}
		if row.RemoteRelations.Valid {
			if err := json.Unmarshal([]byte(row.RemoteRelations.String), &n.RemoteMeta.Relations); err != nil {
				return nil, fmt.Errorf("decode relations: %w", err)
			}
		}
	}

	if row.SyncedAt.Valid {
		t, err := parseTime(row.SyncedAt)
		if err != nil {
			return nil, err
		}
		n.SyncedAt = &t
	}
	return n, nil
}

func formatTime(t time.Time) sql.NullString {
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return t, nil
}
