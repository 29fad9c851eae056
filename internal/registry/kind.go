package registry

import (
	"encoding/json"
	"fmt"
)

// ChannelKind is the closed set of channel roles a module can expose.
type ChannelKind int

const (
	KindStatus ChannelKind = iota
	KindData
	KindEvents
	KindCommands
)

var kindNames = map[ChannelKind]string{
	KindStatus:   "status",
	KindData:     "data",
	KindEvents:   "events",
	KindCommands: "commands",
}

// ParseKind converts a configuration string into a ChannelKind.
func ParseKind(s string) (ChannelKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown channel kind: %q", s)
}

func (k ChannelKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ChannelKind(%d)", int(k))
}

// MarshalJSON encodes the kind as its configuration string.
func (k ChannelKind) MarshalJSON() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("invalid channel kind: %d", int(k))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a configuration string into the kind.
func (k *ChannelKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
