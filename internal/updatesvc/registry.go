package updatesvc

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// Registry holds one Client per update service mode.
type Registry struct {
	clients map[domain.Mode]*Client
}

// DialRegistry dials every configured mode. base supplies the shared
// options; its Address is replaced per mode. Clients dialled before a
// failure are closed.
func DialRegistry(ctx context.Context, addresses map[domain.Mode]string, base Options) (*Registry, error) {
	r := &Registry{clients: make(map[domain.Mode]*Client, len(addresses))}
	for _, mode := range domain.Modes {
		addr, ok := addresses[mode]
		if !ok || addr == "" {
			continue
		}
		opts := base
		opts.Address = addr
		if opts.Logger != nil {
			opts.Logger = opts.Logger.With("mode", string(mode))
		}
		c, err := Dial(ctx, opts)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("%s update service: %w", mode, err)
		}
		r.clients[mode] = c
	}
	return r, nil
}

// NewRegistry wraps already dialled clients.
func NewRegistry(clients map[domain.Mode]*Client) *Registry {
	return &Registry{clients: clients}
}

// Service returns an UpdateService for mode authenticated with ts.
func (r *Registry) Service(mode domain.Mode, ts oauth2.TokenSource) (domain.UpdateService, bool) {
	c, ok := r.clients[mode]
	if !ok {
		return nil, false
	}
	return c.WithTokenSource(ts), true
}

// Ready checks every connection.
func (r *Registry) Ready(ctx context.Context) error {
	var errs []error
	for mode, c := range r.clients {
		if err := c.Ready(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mode, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every connection.
func (r *Registry) Close() error {
	var errs []error
	for mode, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s update service: %w", mode, err))
		}
	}
	return errors.Join(errs...)
}
