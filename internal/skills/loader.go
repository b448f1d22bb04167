package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/haasonsaas/cortex/internal/store"
)

// Loader enumerates skills from a filesystem directory (each skill is a
// folder containing a SKILL.md manifest) and from the store's CustomSkills
// table, caching both by name. Local-directory and DB-table sources only;
// git/registry remote sources have no caller here and are dropped.
type Loader struct {
	dir   string
	store store.Store

	mu    sync.RWMutex
	cache map[string]*SkillEntry
}

// NewLoader constructs a Loader scanning dir for SKILL.md-bearing
// directories and st's CustomSkills table.
func NewLoader(dir string, st store.Store) *Loader {
	return &Loader{dir: dir, store: st, cache: make(map[string]*SkillEntry)}
}

// Load re-scans the filesystem directory and the custom-skill table,
// replacing the cache, and returns the full set sorted by name.
func (l *Loader) Load(ctx context.Context) ([]*SkillEntry, error) {
	local, err := l.discoverLocal()
	if err != nil {
		return nil, fmt.Errorf("skills: discover local: %w", err)
	}
	custom, err := l.discoverCustom(ctx)
	if err != nil {
		return nil, fmt.Errorf("skills: discover custom: %w", err)
	}

	l.mu.Lock()
	l.cache = make(map[string]*SkillEntry, len(local)+len(custom))
	for _, s := range local {
		l.cache[s.Name] = s
	}
	for _, s := range custom {
		// Custom (DB-authored) skills take priority over a same-named
		// filesystem skill: they are the more recently edited copy.
		l.cache[s.Name] = s
	}
	out := make([]*SkillEntry, 0, len(l.cache))
	for _, s := range l.cache {
		out = append(out, s)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns a cached skill by name, or false if not present. Callers
// should call Load at least once before relying on Get.
func (l *Loader) Get(name string) (*SkillEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.cache[name]
	return s, ok
}

func (l *Loader) discoverLocal() ([]*SkillEntry, error) {
	if l.dir == "" {
		return nil, nil
	}
	info, err := os.Stat(l.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", l.dir)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}

	var out []*SkillEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifest := filepath.Join(l.dir, e.Name(), SkillFilename)
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		entry, err := ParseSkillFile(manifest)
		if err != nil {
			continue // a malformed skill is skipped, not fatal to the rest
		}
		entry.Source = SourceLocal
		out = append(out, entry)
	}
	return out, nil
}

func (l *Loader) discoverCustom(ctx context.Context) ([]*SkillEntry, error) {
	if l.store == nil {
		return nil, nil
	}
	rows, err := l.store.ListCustomSkills(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*SkillEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, &SkillEntry{
			Name:        r.Name,
			Description: r.Description,
			Content:     r.Content,
			Source:      SourceCustom,
		})
	}
	return out, nil
}
