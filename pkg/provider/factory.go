// Package provider selects concrete channel provider clients. Each
// provider's quirks live in its own implementation; callers dispatch once
// through the factory instead of switching on channel type strings.
package provider

import (
	"fmt"

	"channelsync/internal/models"
	"channelsync/pkg/provider/types"
)

// Factory resolves a provider client by channel type.
type Factory struct {
	clients map[models.ChannelType]types.Client
}

// NewFactory builds a factory from the given clients. Duplicate channel
// types are rejected.
func NewFactory(clients ...types.Client) (*Factory, error) {
	f := &Factory{clients: make(map[models.ChannelType]types.Client, len(clients))}
	for _, c := range clients {
		if _, exists := f.clients[c.Type()]; exists {
			return nil, fmt.Errorf("duplicate provider client for type %s", c.Type())
		}
		f.clients[c.Type()] = c
	}
	if len(f.clients) == 0 {
		return nil, fmt.Errorf("no provider clients configured")
	}
	return f, nil
}

// Client returns the provider client for the given channel type.
func (f *Factory) Client(t models.ChannelType) (types.Client, error) {
	c, exists := f.clients[t]
	if !exists {
		return nil, fmt.Errorf("no provider client configured for type %s", t)
	}
	return c, nil
}

// Types returns the channel types this factory can serve.
func (f *Factory) Types() []models.ChannelType {
	out := make([]models.ChannelType, 0, len(f.clients))
	for t := range f.clients {
		out = append(out, t)
	}
	return out
}
