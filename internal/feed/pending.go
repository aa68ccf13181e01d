package feed

import "sync"

// pendingSet is the bounded set of users awaiting index reconciliation.
// Once full, new users are rejected; they will be repaired by a later
// explicit rebuild or the next cold-start read instead.
type pendingSet struct {
	mu    sync.Mutex
	users map[string]struct{}
	max   int
}

func newPendingSet(max int) *pendingSet {
	if max < 1 {
		max = 1
	}
	return &pendingSet{
		users: make(map[string]struct{}),
		max:   max,
	}
}

// add records a user for reconciliation. Returns false when the set is full
// and the user was not already present.
func (p *pendingSet) add(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[userID]; ok {
		return true
	}
	if len(p.users) >= p.max {
		return false
	}
	p.users[userID] = struct{}{}
	return true
}

// take removes and returns up to n users.
func (p *pendingSet) take(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.users) {
		n = len(p.users)
	}
	out := make([]string, 0, n)
	for userID := range p.users {
		if len(out) == n {
			break
		}
		delete(p.users, userID)
		out = append(out, userID)
	}
	return out
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}
