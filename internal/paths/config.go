package paths

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/banshee-data/elitemining/internal/fsutil"
)

// Config is the engine's typed key-value configuration. Fields are pointers so
// a missing key is distinguishable from an explicit zero; the Get* accessors
// supply the defaults. Unknown keys in the file are preserved on save.
type Config struct {
	JournalDir        *string `json:"journal_dir,omitempty"`
	ScreenshotsFolder *string `json:"screenshots_folder,omitempty"`

	TTSVoice  *string `json:"tts_voice,omitempty"`
	TTSVolume *int    `json:"tts_volume,omitempty"`

	TextOverlayEnabled  *bool   `json:"text_overlay_enabled,omitempty"`
	TextOverlayColor    *string `json:"text_overlay_color,omitempty"`
	TextOverlayDuration *int    `json:"text_overlay_duration,omitempty"`

	CargoEnabled     *bool   `json:"cargo_enabled,omitempty"`
	CargoMaxCapacity *int    `json:"cargo_max_capacity,omitempty"`
	CargoPosition    *string `json:"cargo_position,omitempty"`

	StayOnTop       *bool `json:"stay_on_top,omitempty"`
	TooltipsEnabled *bool `json:"tooltips_enabled,omitempty"`

	MainAnnouncementEnabled *bool           `json:"main_announcement_enabled,omitempty"`
	Announcements           map[string]bool `json:"announcements,omitempty"`

	AutoScanJournals      *bool `json:"auto_scan_journals,omitempty"`
	AutoStartSession      *bool `json:"auto_start_session,omitempty"`
	PromptOnCargoFull     *bool `json:"prompt_on_cargo_full,omitempty"`
	AskImportOnPathChange *bool `json:"ask_import_on_path_change,omitempty"`

	EDSMAPIKey         *string `json:"edsm_api_key,omitempty"`
	MaterialFuzzyMatch *bool   `json:"material_fuzzy_match,omitempty"`
}

// Store loads and atomically saves a Config at a fixed path.
type Store struct {
	mu   sync.Mutex
	fs   fsutil.FileSystem
	path string
	cfg  Config
}

// NewStore creates a config store backed by the given file path.
func NewStore(fsys fsutil.FileSystem, path string) *Store {
	return &Store{fs: fsys, path: path}
}

// Load reads the config file. A missing file yields an empty config; every
// accessor then returns its default.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.cfg = Config{}
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	s.cfg = cfg
	return nil
}

// Save writes the config atomically: temp file in the same directory, then
// rename over the target.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(&s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.fs, s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Set assigns a recognized key and persists the config atomically. Unknown
// keys are rejected so typos cannot silently create dead configuration.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.set(key, value); err != nil {
		return err
	}
	return s.saveLocked()
}

func (c *Config) set(key string, value interface{}) error {
	switch key {
	case "journal_dir":
		return setString(&c.JournalDir, key, value)
	case "screenshots_folder":
		return setString(&c.ScreenshotsFolder, key, value)
	case "tts_voice":
		return setString(&c.TTSVoice, key, value)
	case "tts_volume":
		return setInt(&c.TTSVolume, key, value)
	case "text_overlay_enabled":
		return setBool(&c.TextOverlayEnabled, key, value)
	case "text_overlay_color":
		return setString(&c.TextOverlayColor, key, value)
	case "text_overlay_duration":
		return setInt(&c.TextOverlayDuration, key, value)
	case "cargo_enabled":
		return setBool(&c.CargoEnabled, key, value)
	case "cargo_max_capacity":
		return setInt(&c.CargoMaxCapacity, key, value)
	case "cargo_position":
		return setString(&c.CargoPosition, key, value)
	case "stay_on_top":
		return setBool(&c.StayOnTop, key, value)
	case "tooltips_enabled":
		return setBool(&c.TooltipsEnabled, key, value)
	case "main_announcement_enabled":
		return setBool(&c.MainAnnouncementEnabled, key, value)
	case "auto_scan_journals":
		return setBool(&c.AutoScanJournals, key, value)
	case "auto_start_session":
		return setBool(&c.AutoStartSession, key, value)
	case "prompt_on_cargo_full":
		return setBool(&c.PromptOnCargoFull, key, value)
	case "ask_import_on_path_change":
		return setBool(&c.AskImportOnPathChange, key, value)
	case "edsm_api_key":
		return setString(&c.EDSMAPIKey, key, value)
	case "material_fuzzy_match":
		return setBool(&c.MaterialFuzzyMatch, key, value)
	}
	if len(key) > len("announcements.") && key[:len("announcements.")] == "announcements." {
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("config key %q wants bool, got %T", key, value)
		}
		if c.Announcements == nil {
			c.Announcements = make(map[string]bool)
		}
		c.Announcements[key[len("announcements."):]] = b
		return nil
	}
	return fmt.Errorf("unrecognized config key %q", key)
}

func setString(dst **string, key string, value interface{}) error {
	v, ok := value.(string)
	if !ok {
		return fmt.Errorf("config key %q wants string, got %T", key, value)
	}
	*dst = &v
	return nil
}

func setInt(dst **int, key string, value interface{}) error {
	switch v := value.(type) {
	case int:
		*dst = &v
		return nil
	case float64: // JSON numbers decode as float64
		i := int(v)
		*dst = &i
		return nil
	}
	return fmt.Errorf("config key %q wants int, got %T", key, value)
}

func setBool(dst **bool, key string, value interface{}) error {
	v, ok := value.(bool)
	if !ok {
		return fmt.Errorf("config key %q wants bool, got %T", key, value)
	}
	*dst = &v
	return nil
}

// Typed accessors with defaults for missing keys.

func (c Config) GetJournalDir() string        { return strOr(c.JournalDir, "") }
func (c Config) GetScreenshotsFolder() string { return strOr(c.ScreenshotsFolder, "") }
func (c Config) GetTTSVoice() string          { return strOr(c.TTSVoice, "") }
func (c Config) GetTTSVolume() int            { return intOr(c.TTSVolume, 80) }
func (c Config) GetCargoMaxCapacity() int     { return intOr(c.CargoMaxCapacity, 0) }
func (c Config) GetCargoPosition() string     { return strOr(c.CargoPosition, "") }
func (c Config) GetEDSMAPIKey() string        { return strOr(c.EDSMAPIKey, "") }

func (c Config) GetTextOverlayEnabled() bool  { return boolOr(c.TextOverlayEnabled, false) }
func (c Config) GetTextOverlayColor() string  { return strOr(c.TextOverlayColor, "white") }
func (c Config) GetTextOverlayDuration() int  { return intOr(c.TextOverlayDuration, 5) }
func (c Config) GetCargoEnabled() bool        { return boolOr(c.CargoEnabled, false) }
func (c Config) GetStayOnTop() bool           { return boolOr(c.StayOnTop, false) }
func (c Config) GetTooltipsEnabled() bool     { return boolOr(c.TooltipsEnabled, true) }
func (c Config) GetMainAnnouncement() bool    { return boolOr(c.MainAnnouncementEnabled, true) }
func (c Config) GetAutoScanJournals() bool    { return boolOr(c.AutoScanJournals, true) }
func (c Config) GetAutoStartSession() bool    { return boolOr(c.AutoStartSession, false) }
func (c Config) GetPromptOnCargoFull() bool   { return boolOr(c.PromptOnCargoFull, true) }
func (c Config) GetAskImportOnChange() bool   { return boolOr(c.AskImportOnPathChange, true) }
func (c Config) GetMaterialFuzzyMatch() bool  { return boolOr(c.MaterialFuzzyMatch, false) }

// GetAnnouncement returns the per-category announcement toggle, defaulting on.
func (c Config) GetAnnouncement(category string) bool {
	if c.Announcements == nil {
		return true
	}
	v, ok := c.Announcements[category]
	if !ok {
		return true
	}
	return v
}

func strOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}
