// Package provider sends rendered messages through external channel APIs.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/unclebandit/retention-engine/internal/model"
)

var (
	// ErrMissingCredentials is returned by constructors when a provider's
	// required settings are empty.
	ErrMissingCredentials = errors.New("provider credentials missing")
	// ErrProviderNotConfigured means no provider is registered for a channel.
	ErrProviderNotConfigured = errors.New("no provider configured for channel")
)

// Message is one outbound message. Subject is ignored by channels that have
// no subject line.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Provider delivers messages on a single channel and returns the provider's
// message id.
type Provider interface {
	Channel() model.Channel
	Send(ctx context.Context, msg Message) (string, error)
}

// Registry resolves the provider for a channel.
type Registry struct {
	providers map[model.Channel]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[model.Channel]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider already bound to its channel.
func (r *Registry) Register(p Provider) {
	r.providers[p.Channel()] = p
}

func (r *Registry) Get(ch model.Channel) (Provider, error) {
	p, ok := r.providers[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, ch)
	}
	return p, nil
}

// Send looks up the channel's provider and sends msg through it.
func (r *Registry) Send(ctx context.Context, ch model.Channel, msg Message) (string, error) {
	p, err := r.Get(ch)
	if err != nil {
		return "", err
	}
	return p.Send(ctx, msg)
}

func (r *Registry) Channels() []model.Channel {
	out := make([]model.Channel, 0, len(r.providers))
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelSMS, model.ChannelChat} {
		if _, ok := r.providers[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
