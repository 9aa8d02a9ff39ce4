package broker

import (
	"sort"
	"sync"
	"time"

	"github.com/evergreen-ci/grid/apimodels"
)

type clientInfo struct {
	hostID      string
	userID      string
	description string
	registered  time.Time
	lastAccess  time.Time
}

// clientRegistry records every client registered for the lifetime of the
// broker. Entries are never removed.
type clientRegistry struct {
	mu      sync.Mutex
	next    apimodels.ClientID
	clients map[apimodels.ClientID]*clientInfo
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{clients: map[apimodels.ClientID]*clientInfo{}}
}

func (r *clientRegistry) register(hostID, userID, description string, now time.Time) apimodels.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	r.clients[id] = &clientInfo{
		hostID:      hostID,
		userID:      userID,
		description: description,
		registered:  now,
		lastAccess:  now,
	}

	return id
}

// touch updates the last access time of the client and reports whether the
// client is known.
func (r *clientRegistry) touch(id apimodels.ClientID, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.clients[id]
	if !ok {
		return false
	}
	info.lastAccess = now
	return true
}

func (r *clientRegistry) status() []apimodels.ClientStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]apimodels.ClientStatus, 0, len(r.clients))
	for id, info := range r.clients {
		out = append(out, apimodels.ClientStatus{
			ClientID:    id,
			HostID:      info.hostID,
			UserID:      info.userID,
			Description: info.description,
			Registered:  info.registered,
			LastAccess:  info.lastAccess,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })

	return out
}
