// Package prefs keeps small local preferences (display names, audio and
// theme settings) in a dotenv-format file. Storage failures never surface to
// callers; the in-memory values keep working.
package prefs

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/abluka/internal/engine"
)

const Prefix = "abluka."

const (
	KeyVolume   = "volume"
	KeyMuted    = "muted"
	KeyDarkMode = "darkMode"
	KeyTheme    = "theme"
)

const MaxNameLen = 24

func PlayerNameKey(p engine.Player) string { return "playerName." + string(p) }

// DefaultName is the label used when a player has not chosen a name.
func DefaultName(p engine.Player) string {
	if p == engine.P2 {
		return "Player 2"
	}
	return "Player 1"
}

// DisplayName trims and NFC-normalises raw and caps it at MaxNameLen runes.
// Blank input falls back to DefaultName.
func DisplayName(p engine.Player, raw string) string {
	name := norm.NFC.String(strings.TrimSpace(raw))
	if utf8.RuneCountInString(name) > MaxNameLen {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLen]))
	}
	if name == "" {
		return DefaultName(p)
	}
	return name
}

type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	log    *zap.Logger
}

// Open loads path if it exists. An empty path keeps everything in memory.
func Open(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, values: map[string]string{}, log: log}
	if path == "" {
		return s
	}

	loaded, err := godotenv.Read(path)
	if err != nil {
		log.Debug("prefs not loaded", zap.String("path", path), zap.Error(err))
		return s
	}
	for k, v := range loaded {
		if strings.HasPrefix(k, Prefix) {
			s.values[k] = v
		}
	}
	return s
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[Prefix+key]
	return v, ok
}

func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[Prefix+key] = value
	s.flush()
}

func (s *Store) PlayerName(p engine.Player) string {
	v, _ := s.Get(PlayerNameKey(p))
	return DisplayName(p, v)
}

func (s *Store) SetPlayerName(p engine.Player, name string) {
	s.Set(PlayerNameKey(p), DisplayName(p, name))
}

// Volume is in [0,1] and defaults to 1.
func (s *Store) Volume() float64 {
	v, ok := s.Get(KeyVolume)
	if !ok {
		return 1
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 1
	}
	return min(max(f, 0), 1)
}

func (s *Store) SetVolume(v float64) {
	s.Set(KeyVolume, strconv.FormatFloat(min(max(v, 0), 1), 'f', -1, 64))
}

func (s *Store) Muted() bool    { return s.bool(KeyMuted) }
func (s *Store) DarkMode() bool { return s.bool(KeyDarkMode) }

func (s *Store) SetMuted(b bool)    { s.Set(KeyMuted, strconv.FormatBool(b)) }
func (s *Store) SetDarkMode(b bool) { s.Set(KeyDarkMode, strconv.FormatBool(b)) }

func (s *Store) Theme() string {
	v, _ := s.Get(KeyTheme)
	return v
}

func (s *Store) SetTheme(theme string) { s.Set(KeyTheme, theme) }

func (s *Store) bool(key string) bool {
	v, _ := s.Get(key)
	b, _ := strconv.ParseBool(v)
	return b
}

// flush rewrites the file; caller holds mu.
func (s *Store) flush() {
	if s.path == "" {
		return
	}
	if err := os.WriteFile(s.path, []byte(marshal(s.values)), 0o600); err != nil {
		s.log.Debug("prefs not saved", zap.String("path", s.path), zap.Error(err))
	}
}

// marshal quotes every value. godotenv.Marshal writes integer-looking values
// bare, which turns a name like "007" into 7 on the next Read.
func marshal(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=\"%s\"\n", k, quoteEscaper.Replace(values[k]))
	}
	return b.String()
}

// quoteEscaper matches the escapes godotenv.Read undoes inside double quotes.
var quoteEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	`"`, `\"`,
	"!", `\!`,
	"$", `\$`,
	"`", "\\`",
)
