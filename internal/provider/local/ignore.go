package local

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/notesync/internal/utils"
	"github.com/openmined/notesync/internal/workspace"
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	// notesync
	workspace.MetadataDirName + "/",
	workspace.IgnoreFileName,
	workspace.EnvFileName,
	// editors
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// general
	".git",
	"*.tmp",
	// os
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList decides which paths below the root stay out of the local tree.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// Load reads the workspace ignore file on top of the defaults
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, workspace.IgnoreFileName)
	lines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("ignore file open", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				lines = append(lines, line)
				rules++
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("ignore file read", "path", ignorePath, "error", err)
			} else {
				slog.Debug("ignore file loaded", "path", ignorePath, "rules", rules)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore matches a root-relative slash path. Directories end with "/".
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	if rel == workspace.MetadataDirName+"/" || strings.HasPrefix(rel, workspace.MetadataDirName+"/") {
		return true
	}
	return l.ignore.MatchesPath(rel)
}
