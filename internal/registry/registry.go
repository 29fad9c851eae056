package registry

import (
	"log/slog"
	"strings"
	"unicode"
)

// ChannelDescriptor is one typed message stream of a module. Immutable
// after Parse.
type ChannelDescriptor struct {
	Kind    ChannelKind `json:"type"`
	Address string      `json:"address"`
	Topic   string      `json:"topic,omitempty"`
	IP      string      `json:"ip,omitempty"`
}

// ModuleDescriptor describes one external DAQ process and its channels.
// Immutable after Parse; the relay treats Type as an opaque rendering tag.
type ModuleDescriptor struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        string              `json:"type"`
	Channels    []ChannelDescriptor `json:"sockets"`
}

// RawSocket is a module socket entry as it appears in the configuration
// file, before validation. Type stays a plain string here so a bad entry
// rejects just that socket, not the whole file.
type RawSocket struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Topic   string `json:"topic"`
	IP      string `json:"ip"`
}

// RawModule is a module entry as it appears in the configuration file.
type RawModule struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Sockets     []RawSocket `json:"sockets"`
}

// Registry holds the validated, immutable module descriptors in
// configuration order.
type Registry struct {
	descriptors []ModuleDescriptor
	byName      map[string]int
}

// SanitizeName strips whitespace and non-ASCII runes from a module name.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsSpace(r) || r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Parse validates raw module entries into a Registry. Invalid entries and
// duplicate names are logged and dropped; Parse itself never fails.
func Parse(raw []RawModule, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	r := &Registry{byName: make(map[string]int)}

	for _, m := range raw {
		if m.Name == "" || m.Type == "" || len(m.Sockets) == 0 {
			log.Warn("skipping module entry missing name, type or sockets",
				"name", m.Name, "type", m.Type)
			continue
		}

		name := SanitizeName(m.Name)
		if name == "" {
			log.Warn("skipping module with empty sanitized name", "name", m.Name)
			continue
		}
		if _, exists := r.byName[name]; exists {
			log.Error("module names must be unique, dropping repeated entry", "name", name)
			continue
		}

		var channels []ChannelDescriptor
		for _, s := range m.Sockets {
			if s.Type == "" || s.Address == "" {
				log.Warn("skipping socket entry missing type or address",
					"module", name, "type", s.Type, "address", s.Address)
				continue
			}
			kind, err := ParseKind(s.Type)
			if err != nil {
				log.Warn("skipping socket entry", "module", name, "error", err)
				continue
			}
			channels = append(channels, ChannelDescriptor{
				Kind:    kind,
				Address: s.Address,
				Topic:   s.Topic,
				IP:      s.IP,
			})
		}

		log.Debug("found module", "name", name, "type", m.Type, "sockets", len(channels))

		r.byName[name] = len(r.descriptors)
		r.descriptors = append(r.descriptors, ModuleDescriptor{
			Name:        name,
			Description: m.Description,
			Type:        m.Type,
			Channels:    channels,
		})
	}

	return r
}

// Descriptors returns all modules in configuration order.
func (r *Registry) Descriptors() []ModuleDescriptor {
	return r.descriptors
}

// Lookup returns the descriptor for a sanitized module name.
func (r *Registry) Lookup(name string) (ModuleDescriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return ModuleDescriptor{}, false
	}
	return r.descriptors[i], true
}

// Has reports whether a module with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}
