package spindle

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/nornlabs/norn/types"
)

// peerRateLimit is the sustained rate and burst allowance applied to each
// remote peer's knot gossip, bounding how much work a single noisy or
// hostile peer can push onto the watchtower's fraud-detection path.
const (
	peerRateLimit = 50 // knots per second
	peerBurst     = 200
)

// PeerLimiter enforces a per-peer token-bucket rate limit, so a single
// flooding peer can't exhaust the watchtower's cache churn or CPU budget.
type PeerLimiter struct {
	mu       sync.Mutex
	limiters map[types.Address]*rate.Limiter
}

func NewPeerLimiter() *PeerLimiter {
	return &PeerLimiter{limiters: make(map[types.Address]*rate.Limiter)}
}

// Allow reports whether peer may submit another knot right now, creating a
// fresh token bucket for peers seen for the first time.
func (p *PeerLimiter) Allow(peer types.Address) bool {
	p.mu.Lock()
	l, ok := p.limiters[peer]
	if !ok {
		l = rate.NewLimiter(rate.Limit(peerRateLimit), peerBurst)
		p.limiters[peer] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
