package registry

import "strings"

const defaultIP = "127.0.0.1"

// ResolveAddress returns the dialable form of the channel's address.
// Publishers declare bind addresses in the ZMQ wildcard style
// ("tcp://*:16180"); the wildcard is replaced by the channel's IP, or
// 127.0.0.1 when none is configured.
func (c ChannelDescriptor) ResolveAddress() string {
	if !strings.Contains(c.Address, "*") {
		return c.Address
	}
	ip := c.IP
	if ip == "" {
		ip = defaultIP
	}
	return strings.Replace(c.Address, "*", ip, 1)
}
