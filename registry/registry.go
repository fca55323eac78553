// Package registry maps participant identities (hotkeys) to their stake and permissions.
//
// The registry itself lives outside of this process (on chain). This package
// defines the interface the rest of the code depends on, a file-backed
// implementation that loads a snapshot of it, and the policies built on top:
// request authorization and selection of miners to query.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spacemeshos/noncemine/logging"
)

var ErrNotRegistered = errors.New("participant is not registered")

// Participant is a registry entry.
type Participant struct {
	UID             int     `yaml:"uid"`
	Hotkey          string  `yaml:"hotkey"`
	Address         string  `yaml:"address"`
	Stake           float64 `yaml:"stake"`
	ValidatorPermit bool    `yaml:"validator_permit"`
}

type Registry interface {
	// Participants returns all registered participants.
	Participants(ctx context.Context) ([]Participant, error)
	// Lookup resolves a hotkey. It returns ErrNotRegistered for unknown hotkeys.
	Lookup(ctx context.Context, hotkey string) (Participant, error)
}

type snapshot struct {
	Participants []Participant `yaml:"participants"`
}

// File is a Registry backed by a YAML snapshot on disk.
type File struct {
	path string

	mu       sync.RWMutex
	all      []Participant
	byHotkey map[string]Participant
}

// Open loads the snapshot at path. Failing to load it is fatal for the caller.
func Open(ctx context.Context, path string) (*File, error) {
	f := &File{path: path}
	if err := f.Sync(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Sync reloads the snapshot from disk.
func (f *File) Sync(ctx context.Context) error {
	data, err := os.ReadFile(f.path) //#nosec G304
	if err != nil {
		return fmt.Errorf("reading registry snapshot: %w", err)
	}
	var s snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing registry snapshot %s: %w", f.path, err)
	}
	sort.SliceStable(s.Participants, func(i, j int) bool { return s.Participants[i].UID < s.Participants[j].UID })
	byHotkey := make(map[string]Participant, len(s.Participants))
	for _, p := range s.Participants {
		if p.Hotkey == "" {
			return fmt.Errorf("participant with uid %d has no hotkey", p.UID)
		}
		if _, ok := byHotkey[p.Hotkey]; ok {
			return fmt.Errorf("duplicated hotkey %s", p.Hotkey)
		}
		byHotkey[p.Hotkey] = p
	}

	f.mu.Lock()
	f.all = s.Participants
	f.byHotkey = byHotkey
	f.mu.Unlock()

	logging.FromContext(ctx).Debug("registry synced", zap.String("path", f.path), zap.Int("participants", len(s.Participants)))
	return nil
}

func (f *File) Participants(ctx context.Context) ([]Participant, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Participant(nil), f.all...), nil
}

func (f *File) Lookup(ctx context.Context, hotkey string) (Participant, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.byHotkey[hotkey]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %s", ErrNotRegistered, hotkey)
	}
	return p, nil
}

// Static is an in-memory Registry.
type Static []Participant

func (s Static) Participants(ctx context.Context) ([]Participant, error) {
	return append([]Participant(nil), s...), nil
}

func (s Static) Lookup(ctx context.Context, hotkey string) (Participant, error) {
	for _, p := range s {
		if p.Hotkey == hotkey {
			return p, nil
		}
	}
	return Participant{}, fmt.Errorf("%w: %s", ErrNotRegistered, hotkey)
}
