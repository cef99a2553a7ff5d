package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Fi44er/sol_gift/internal/models"
)

var ErrUnknownNetwork = errors.New("unknown network")

// Pool holds one client per configured network.
type Pool struct {
	clients  map[models.Network]*Client
	fallback models.Network
}

func NewPool(fallback models.Network, clients map[models.Network]*Client) *Pool {
	return &Pool{clients: clients, fallback: fallback}
}

// For returns the client for network; an empty network selects the default one.
func (p *Pool) For(network models.Network) (*Client, error) {
	if network == "" {
		network = p.fallback
	}
	c, ok := p.clients[network]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
	return c, nil
}

func (p *Pool) Default() models.Network {
	return p.fallback
}

// Networks lists the configured networks in name order.
func (p *Pool) Networks() []models.Network {
	networks := make([]models.Network, 0, len(p.clients))
	for n := range p.clients {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i] < networks[j] })
	return networks
}

// Healthy checks every network and reports the first failure.
func (p *Pool) Healthy(ctx context.Context) error {
	for _, n := range p.Networks() {
		if err := p.clients[n].Healthy(ctx); err != nil {
			return fmt.Errorf("%s: %w", n, err)
		}
	}
	return nil
}
