package journal

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/monitoring"
	"github.com/banshee-data/elitemining/internal/timeutil"
)

// DefaultPollInterval is how often the reader checks for journal growth.
const DefaultPollInterval = 500 * time.Millisecond

const (
	readRetries    = 3
	readRetryDelay = 100 * time.Millisecond
)

var journalName = regexp.MustCompile(`^Journal\..*\.log$`)

// StartPolicy decides where a reader with no saved resume state begins.
type StartPolicy int

const (
	// SkipToLive starts at the end of the newest journal: only new events flow.
	SkipToLive StartPolicy = iota
	// ReplayAll processes every journal from the beginning before going live.
	ReplayAll
)

// resumeState is the persisted (filename, offset) cursor.
type resumeState struct {
	Journal string `json:"journal"`
	Offset  int64  `json:"offset"`
}

// Reader tails the game's journal directory. The newest Journal.*.log by
// modification time is the live file; on rotation the remainder of the old
// file is drained before switching, so per-file byte order is preserved and
// cross-file order follows mtime. Status.json and Cargo.json are polled by
// mtime and forwarded as snapshot events.
type Reader struct {
	Dir       string
	StatePath string // "" disables resume persistence
	Policy    StartPolicy
	Interval  time.Duration
	FS        fsutil.FileSystem
	Clock     timeutil.Clock
	Handle    func(Event)

	StopChan chan struct{}

	initialized bool
	live        string // base name of the live journal
	offset      int64
	statusMtime time.Time
	cargoMtime  time.Time
}

// NewReader builds a reader over dir delivering events to handle.
func NewReader(dir string, handle func(Event)) *Reader {
	return &Reader{
		Dir:      dir,
		Interval: DefaultPollInterval,
		FS:       fsutil.OSFileSystem{},
		Clock:    timeutil.RealClock{},
		Handle:   handle,
		StopChan: make(chan struct{}),
	}
}

// Run polls until Stop is called.
func (r *Reader) Run() {
	ticker := r.Clock.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.StopChan:
			return
		case <-ticker.C():
			r.Poll()
		}
	}
}

// Stop terminates Run.
func (r *Reader) Stop() {
	close(r.StopChan)
}

// Poll performs one read cycle: initialize on first call, drain journal
// growth, handle rotation, and check the snapshot files. Exported so tests
// drive the reader without the goroutine.
func (r *Reader) Poll() {
	if !r.initialized {
		r.initialize()
		r.initialized = true
	}

	newest, ok := r.newestJournal()
	switch {
	case !ok:
		// Nothing to tail; keep checking the snapshots.
	case r.live == "":
		r.live, r.offset = newest, 0
	case newest != r.live:
		// Rotation: drain the old live file, then start the new one at 0.
		if r.FS.Exists(filepath.Join(r.Dir, r.live)) {
			r.drainLive()
		}
		r.live, r.offset = newest, 0
	case !r.FS.Exists(filepath.Join(r.Dir, r.live)):
		r.live, r.offset = newest, 0
	}

	if r.live != "" {
		r.drainLive()
	}
	r.pollSnapshots()
	r.saveState()
}

// initialize loads the resume cursor or applies the first-run policy.
func (r *Reader) initialize() {
	if r.StatePath != "" && r.FS.Exists(r.StatePath) {
		data, err := r.FS.ReadFile(r.StatePath)
		if err == nil {
			var st resumeState
			if err := json.Unmarshal(data, &st); err == nil && st.Journal != "" &&
				r.FS.Exists(filepath.Join(r.Dir, st.Journal)) {
				r.live, r.offset = st.Journal, st.Offset
				if info, err := r.FS.Stat(filepath.Join(r.Dir, st.Journal)); err == nil && info.Size() < r.offset {
					r.offset = 0 // truncated or reused name; start over
				}
				return
			}
		}
		monitoring.Logf("journal resume state unusable, starting fresh")
	}

	if r.Policy == ReplayAll {
		for _, name := range r.journalsByMtime() {
			r.live, r.offset = name, 0
			r.drainLive()
		}
		return
	}

	// SkipToLive: position at the end of the newest journal.
	if newest, ok := r.newestJournal(); ok {
		r.live = newest
		if info, err := r.FS.Stat(filepath.Join(r.Dir, newest)); err == nil {
			r.offset = info.Size()
		}
	}
}

// newestJournal returns the journal file with the latest mtime.
func (r *Reader) newestJournal() (string, bool) {
	names := r.journalsByMtime()
	if len(names) == 0 {
		return "", false
	}
	return names[len(names)-1], true
}

// journalsByMtime lists journal files oldest-first.
func (r *Reader) journalsByMtime() []string {
	entries, err := r.FS.ReadDir(r.Dir)
	if err != nil {
		return nil
	}
	type cand struct {
		name  string
		mtime time.Time
	}
	var cands []cand
	for _, e := range entries {
		if e.IsDir() || !journalName.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, cand{e.Name(), info.ModTime()})
	}
	// Insertion sort keeps ties in ReadDir's name order, which matches the
	// game's sequence numbering.
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].mtime.Before(cands[j-1].mtime); j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return names
}

// drainLive reads and dispatches any complete lines past the current offset.
func (r *Reader) drainLive() {
	path := filepath.Join(r.Dir, r.live)
	info, err := r.FS.Stat(path)
	if err != nil {
		return
	}
	if info.Size() <= r.offset {
		return
	}

	data, err := r.readFileRetry(path)
	if err != nil {
		monitoring.Logf("failed to read journal %s: %v", r.live, err)
		return
	}
	if int64(len(data)) <= r.offset {
		return
	}
	consumed := r.processLines(data[r.offset:])
	r.offset += consumed
}

// readFileRetry reads a file with a bounded retry; other processes briefly
// lock journal files.
func (r *Reader) readFileRetry(path string) ([]byte, error) {
	var data []byte
	var err error
	for attempt := 0; attempt < readRetries; attempt++ {
		if attempt > 0 {
			r.Clock.Sleep(readRetryDelay)
		}
		data, err = r.FS.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, err
}

// processLines decodes and dispatches every complete line in buf, returning
// the number of bytes consumed. A trailing partial line is left for the next
// poll. One bad line never stops the file.
func (r *Reader) processLines(buf []byte) int64 {
	var consumed int64
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return consumed
		}
		line := bytes.TrimRight(buf[:i], "\r")
		consumed += int64(i + 1)
		buf = buf[i+1:]

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := Decode(line)
		if err != nil {
			monitoring.Logf("skipping journal line: %v", err)
			continue
		}
		if ev != nil && r.Handle != nil {
			r.Handle(ev)
		}
	}
}

// pollSnapshots forwards Status.json / Cargo.json when their mtime changes.
func (r *Reader) pollSnapshots() {
	if t, data, ok := r.snapshotChanged("Status.json", r.statusMtime); ok {
		var ev StatusSnapshot
		if err := json.Unmarshal(data, &ev); err != nil {
			monitoring.Logf("skipping malformed Status.json: %v", err)
		} else {
			r.statusMtime = t
			if r.Handle != nil {
				r.Handle(&ev)
			}
		}
	}
	if t, data, ok := r.snapshotChanged("Cargo.json", r.cargoMtime); ok {
		var ev CargoSnapshot
		if err := json.Unmarshal(data, &ev); err != nil {
			monitoring.Logf("skipping malformed Cargo.json: %v", err)
		} else {
			r.cargoMtime = t
			if r.Handle != nil {
				r.Handle(&ev)
			}
		}
	}
}

func (r *Reader) snapshotChanged(name string, last time.Time) (time.Time, []byte, bool) {
	path := filepath.Join(r.Dir, name)
	info, err := r.FS.Stat(path)
	if err != nil {
		return time.Time{}, nil, false
	}
	if !info.ModTime().After(last) {
		return time.Time{}, nil, false
	}
	data, err := r.readFileRetry(path)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		// Mid-rewrite; pick it up next poll.
		return time.Time{}, nil, false
	}
	return info.ModTime(), data, true
}

// saveState persists the resume cursor atomically.
func (r *Reader) saveState() {
	if r.StatePath == "" || r.live == "" {
		return
	}
	data, err := json.Marshal(resumeState{Journal: r.live, Offset: r.offset})
	if err != nil {
		return
	}
	if err := fsutil.WriteFileAtomic(r.FS, r.StatePath, data, 0644); err != nil {
		monitoring.Logf("failed to save journal resume state: %v", err)
	}
}
