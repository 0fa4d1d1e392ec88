package consensus

import "time"

// baseViewTimeout and maxViewTimeout bound the view's doubling backoff: a
// silent leader costs the network at most maxViewTimeout before a new view
// is forced, but a single dropped message doesn't immediately escalate to
// the cap.
const (
	baseViewTimeout = 2 * time.Second
	maxViewTimeout  = 32 * time.Second
)

// ViewTimeout returns how long a replica waits for the leader of view
// before broadcasting a ViewChange, doubling per view and capping at
// maxViewTimeout. The view resets to 0 whenever height advances, so a
// healthy chain always proposes at the base timeout.
func ViewTimeout(view uint64) time.Duration {
	if view > 4 {
		return maxViewTimeout
	}
	d := baseViewTimeout * time.Duration(uint64(1)<<view)
	if d > maxViewTimeout {
		return maxViewTimeout
	}
	return d
}
