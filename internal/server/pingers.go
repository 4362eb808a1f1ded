package server

import (
	"context"
	"fmt"
)

// funcPinger adapts a plain probe function to the Pinger interface.
type funcPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// ping is the probe itself.
	ping func(ctx context.Context) error
}

// PingFunc returns a Pinger named name that runs fn. The index holder, the
// Qdrant store, the history store and the chat provider all expose a
// Ping(ctx) error method and are registered through it.
func PingFunc(name string, fn func(ctx context.Context) error) Pinger {
	return &funcPinger{name: name, ping: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *funcPinger) Name() string { return p.name }

// Ping runs the probe and prefixes failures with the dependency name.
func (p *funcPinger) Ping(ctx context.Context) error {
	if err := p.ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}
