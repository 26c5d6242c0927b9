package evaluate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sagecache/internal/evalstore"
)

type poolKey struct {
	source   string
	platform string
}

// BuildSession is the state of one evaluation pass. Each source group gets
// its own kernel client per platform; clients are created before dispatch
// and are never shared between groups.
type BuildSession struct {
	PassID  string
	Started time.Time

	mu      sync.Mutex
	clients map[poolKey]Client
	touched map[string]struct{}
}

func newBuildSession(started time.Time) *BuildSession {
	return &BuildSession{
		PassID:  uuid.NewString(),
		Started: started,
		clients: map[poolKey]Client{},
		touched: map[string]struct{}{},
	}
}

// bind creates a client for every platform used by the group's blocks.
// Platforms without a backend are returned as unsupported.
func (s *BuildSession) bind(g evalstore.Group, backends map[string]NewClientFunc) (clients map[string]Client, unsupported []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clients = map[string]Client{}
	seen := map[string]bool{}
	for _, b := range g.Blocks {
		if seen[b.Platform] {
			continue
		}
		seen[b.Platform] = true
		newClient, ok := backends[b.Platform]
		if !ok {
			unsupported = append(unsupported, b.Platform)
			continue
		}
		c := newClient()
		s.clients[poolKey{source: g.Source.Path, platform: b.Platform}] = c
		clients[b.Platform] = c
	}
	sort.Strings(unsupported)
	return clients, unsupported
}

// Client returns the client bound to a source and platform.
func (s *BuildSession) Client(source, platform string) (Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[poolKey{source: source, platform: platform}]
	return c, ok
}

// release cleans up and forgets every client of a source.
func (s *BuildSession) release(ctx context.Context, source string) {
	s.mu.Lock()
	var clients []Client
	for k, c := range s.clients {
		if k.source == source {
			clients = append(clients, c)
			delete(s.clients, k)
		}
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.Cleanup(ctx)
	}
}

func (s *BuildSession) markTouched(source string) {
	s.mu.Lock()
	s.touched[source] = struct{}{}
	s.mu.Unlock()
}

// Touched lists sources whose stored results changed during the pass.
func (s *BuildSession) Touched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.touched))
	for p := range s.touched {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
