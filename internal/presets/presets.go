// Package presets loads named room configurations from YAML.
package presets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/matchlink/internal/client"
	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// Preset is the YAML form of one room configuration. Unset booleans take
// the client defaults: visible, open, and cleaned up on leave.
type Preset struct {
	Name                string         `yaml:"name"`
	MaxPlayers          int            `yaml:"max_players"`
	Visible             *bool          `yaml:"visible"`
	Open                *bool          `yaml:"open"`
	EmptyRoomTTL        int            `yaml:"empty_room_ttl_ms"`
	PlayerTTL           int            `yaml:"player_ttl_ms"`
	CheckUserOnJoin     bool           `yaml:"check_user_on_join"`
	CleanupCacheOnLeave *bool          `yaml:"cleanup_cache_on_leave"`
	Properties          map[string]any `yaml:"properties"`
	ListedInLobby       []string       `yaml:"listed_in_lobby"`
	ExpectedUsers       []string       `yaml:"expected_users"`
	Lobby               string         `yaml:"lobby"`
	LobbyType           int            `yaml:"lobby_type"`
}

// RoomOptions converts p into validated client room options.
//
// Postcondition: Returns options that pass RoomOptions.Validate, or an error.
func (p *Preset) RoomOptions() (client.RoomOptions, error) {
	o := client.DefaultRoomOptions()
	if p.Visible != nil {
		o.IsVisible = *p.Visible
	}
	if p.Open != nil {
		o.IsOpen = *p.Open
	}
	if p.CleanupCacheOnLeave != nil {
		o.CleanupCacheOnLeave = *p.CleanupCacheOnLeave
	}
	o.MaxPlayers = p.MaxPlayers
	o.EmptyRoomTTL = p.EmptyRoomTTL
	o.PlayerTTL = p.PlayerTTL
	o.CheckUserOnJoin = p.CheckUserOnJoin
	o.CustomProperties = p.Properties
	o.PropsListedInLobby = p.ListedInLobby
	o.ExpectedUsers = p.ExpectedUsers
	o.LobbyName = p.Lobby
	o.LobbyType = protocol.LobbyType(p.LobbyType)
	if err := o.Validate(); err != nil {
		return client.RoomOptions{}, fmt.Errorf("preset %q: %w", p.Name, err)
	}
	return o, nil
}

// Registry holds presets keyed by name.
type Registry struct {
	presets map[string]*Preset
}

// Get returns the preset called name, or (nil, false) if not found.
func (r *Registry) Get(name string) (*Preset, bool) {
	p, ok := r.presets[name]
	return p, ok
}

// Names returns every preset name in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.presets))
	for name := range r.presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Options resolves the preset called name into room options.
func (r *Registry) Options(name string) (client.RoomOptions, error) {
	p, ok := r.Get(name)
	if !ok {
		return client.RoomOptions{}, fmt.Errorf("unknown preset %q", name)
	}
	return p.RoomOptions()
}

// Parse decodes a stream of YAML documents, one preset per document.
// Unknown fields are rejected.
//
// Postcondition: Every returned preset has a unique non-empty name and
// converts to valid room options.
func Parse(data []byte) (*Registry, error) {
	reg := &Registry{presets: make(map[string]*Preset)}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	for {
		var p Preset
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding preset: %w", err)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("preset %d has no name", len(reg.presets)+1)
		}
		if _, dup := reg.presets[p.Name]; dup {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		if _, err := p.RoomOptions(); err != nil {
			return nil, err
		}
		reg.presets[p.Name] = &p
	}
	return reg, nil
}

// Load reads and parses the preset file at path.
//
// Precondition: path must name a readable file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading presets %q: %w", path, err)
	}
	return Parse(data)
}
