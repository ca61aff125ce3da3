package models

import "fmt"

// Channel is the front-end surface a request arrived through. Each channel
// tracks its own active session; ChannelShared is the fallback pointer.
type Channel string

const (
	ChannelBot      Channel = "bot"
	ChannelWeb      Channel = "web"
	ChannelTerminal Channel = "terminal"
	ChannelShared   Channel = "shared"
)

// AllChannels lists every channel in a stable order.
var AllChannels = []Channel{ChannelBot, ChannelWeb, ChannelTerminal, ChannelShared}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelBot, ChannelWeb, ChannelTerminal, ChannelShared:
		return true
	}
	return false
}

// ParseChannel converts a string into a Channel, rejecting unknown values.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("models: unknown channel %q", s)
	}
	return c, nil
}
