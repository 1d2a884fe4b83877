package portal

import (
	"context"
	"net/http"
	"sync"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
)

// Dialer creates a client for a server. Overridable in tests.
type Dialer func(server *model.Server) Client

// Pool caches one logged-in client per server for the process lifetime.
// An explicit object owned by the engine and passed by reference, not
// process-global static state.
type Pool struct {
	mu      sync.Mutex
	dial    Dialer
	clients map[int64]Client
}

// NewPool creates a client pool. A nil dialer uses the HTTP client.
func NewPool(dial Dialer) *Pool {
	if dial == nil {
		dial = func(server *model.Server) Client {
			return NewHTTPClient(server, &http.Client{})
		}
	}
	return &Pool{dial: dial, clients: make(map[int64]Client)}
}

// ClientFor returns the cached client for a server, dialing and logging in
// on first use.
func (p *Pool) ClientFor(ctx context.Context, server *model.Server) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[server.ID]; ok {
		return client, nil
	}

	client := p.dial(server)
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	p.clients[server.ID] = client
	return client, nil
}
