// Package paths resolves the engine's data locations and owns the typed
// key-value configuration store.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/elitemining/internal/fsutil"
)

// EnvDataDir overrides the data root when set. Used by dev checkouts and tests.
const EnvDataDir = "ELITEMINING_DATA"

// Paths holds every file location the engine reads or writes. The journal
// directory itself is configuration (the game owns it), not a path here.
type Paths struct {
	DataDir       string
	ConfigFile    string
	HotspotDB     string
	GalaxyDB      string
	ReportsDir    string
	SessionIndex  string
	ScanStateFile string
	CrashLog      string
	OverlapCSV    string
	RESCSV        string
	BundledDB     string
}

// Resolve determines the data root (env override first, then the OS user
// config dir) and ensures the writable directories exist. A failure here is
// the catastrophic-startup case: the error is also written to a crash log
// beside the executable so there is a trace even when no UI ever comes up.
func Resolve(fsys fsutil.FileSystem) (Paths, error) {
	root := os.Getenv(EnvDataDir)
	if root == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Paths{}, writeCrashLog(fsys, fmt.Errorf("no user config dir: %w", err))
		}
		root = filepath.Join(base, "EliteMining")
	}

	p := Paths{
		DataDir:       root,
		ConfigFile:    filepath.Join(root, "config.json"),
		HotspotDB:     filepath.Join(root, "hotspots.db"),
		GalaxyDB:      filepath.Join(root, "galaxy.db"),
		ReportsDir:    filepath.Join(root, "Reports"),
		SessionIndex:  filepath.Join(root, "Reports", "sessions_index.csv"),
		ScanStateFile: filepath.Join(root, "journal_scan_state.json"),
		CrashLog:      filepath.Join(root, "crash.log"),
		OverlapCSV:    filepath.Join(root, "overlaps.csv"),
		RESCSV:        filepath.Join(root, "res_sites.csv"),
		BundledDB:     filepath.Join(root, "bundled_hotspots.db"),
	}

	if err := fsys.MkdirAll(p.ReportsDir, 0755); err != nil {
		return Paths{}, writeCrashLog(fsys, fmt.Errorf("cannot create data root %s: %w", root, err))
	}
	return p, nil
}

// writeCrashLog records a catastrophic startup failure next to the working
// directory and returns the original error for loud propagation.
func writeCrashLog(fsys fsutil.FileSystem, cause error) error {
	line := fmt.Sprintf("%s startup failure: %v\n", time.Now().Format(time.RFC3339), cause)
	// Best effort; the original error is what matters.
	_ = fsys.WriteFile("elitemining_crash.log", []byte(line), 0644)
	return cause
}
