package journal

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/monitoring"
)

// Scanner is the one-shot catch-up importer: it runs every journal in a
// directory through a handler in mtime order. Cancellation is checked between
// files; rows already ingested stay.
type Scanner struct {
	Dir    string
	FS     fsutil.FileSystem
	Handle func(Event)

	// Progress, when set, is called before each file with its 1-based index
	// and the total file count.
	Progress func(name string, index, total int)
}

// NewScanner builds a scanner over dir delivering events to handle.
func NewScanner(dir string, handle func(Event)) *Scanner {
	return &Scanner{Dir: dir, FS: fsutil.OSFileSystem{}, Handle: handle}
}

// Run processes all journal files. One bad file is logged and skipped; only
// context cancellation stops the scan early.
func (s *Scanner) Run(ctx context.Context) error {
	r := &Reader{Dir: s.Dir, FS: s.FS, Handle: s.Handle}
	names := r.journalsByMtime()

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("journal scan cancelled after %d of %d files: %w", i, len(names), err)
		}
		if s.Progress != nil {
			s.Progress(name, i+1, len(names))
		}
		if err := s.scanFile(name); err != nil {
			monitoring.Logf("skipping journal %s: %v", name, err)
		}
	}
	return nil
}

func (s *Scanner) scanFile(name string) error {
	data, err := s.FS.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return err
	}
	// Reuse the reader's line loop; a missing trailing newline still counts as
	// a complete final line here since the file is done growing.
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(bytes.Clone(data), '\n')
	}
	r := &Reader{Handle: s.Handle}
	r.processLines(data)
	return nil
}
