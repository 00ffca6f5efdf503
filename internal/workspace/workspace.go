package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/notesync/internal/utils"
)

const (
	MetadataDirName = ".notesync"
	IgnoreFileName  = ".notesyncignore"
	EnvFileName     = ".env"
	logsDir         = "logs"
	lockFile        = "notesync.lock"
	logFile         = "notesync.log"
	stateYAML       = "state.yml"
	stateSQLite     = "state.db"
)

var ErrWorkspaceLocked = errors.New("workspace locked by another process")

const defaultIgnore = `# notesync ignore rules, gitignore syntax
.git/
.DS_Store
Thumbs.db
*.tmp
*.swp
~$*
`

// Workspace is a local directory tree kept in sync with a remote root.
type Workspace struct {
	Root        string
	MetadataDir string
	LogsDir     string
	IgnoreFile  string
	EnvFile     string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", rootDir, err)
	}

	metadataDir := filepath.Join(root, MetadataDirName)
	return &Workspace{
		Root:        root,
		MetadataDir: metadataDir,
		LogsDir:     filepath.Join(metadataDir, logsDir),
		IgnoreFile:  filepath.Join(root, IgnoreFileName),
		EnvFile:     filepath.Join(root, EnvFileName),
		flock:       flock.New(filepath.Join(metadataDir, lockFile)),
	}, nil
}

// LogFile is where the file log handler writes
func (w *Workspace) LogFile() string {
	return filepath.Join(w.LogsDir, logFile)
}

// StatePath returns the state file for a backend, "yaml" or "sqlite"
func (w *Workspace) StatePath(backend string) string {
	if backend == "sqlite" {
		return filepath.Join(w.MetadataDir, stateSQLite)
	}
	return filepath.Join(w.MetadataDir, stateYAML)
}

// Lock takes the workspace lock without blocking
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("create %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

// Unlock releases the lock if this process holds it
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// Setup creates the metadata directories and a default ignore file
func (w *Workspace) Setup() error {
	for _, dir := range []string{w.Root, w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if !utils.FileExists(w.IgnoreFile) {
		if err := os.WriteFile(w.IgnoreFile, []byte(defaultIgnore), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", w.IgnoreFile, err)
		}
		slog.Debug("workspace ignore file created", "path", w.IgnoreFile)
	}

	slog.Info("workspace", "root", w.Root)
	return nil
}
