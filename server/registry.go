package server

import (
	"errors"
	"sort"
	"sync"
)

// ReservedName can never be claimed; the server announces under it.
const ReservedName = "system"

var (
	errAccountActive = errors.New("account already has an active session")
	errNameReserved  = errors.New("display name is reserved")
	errNameTaken     = errors.New("display name already taken")
)

// registry is the process-wide table of live sessions. One mutex guards both
// indexes and the all-connections set, so the account and name views can
// never be observed mutually inconsistent.
type registry struct {
	mu        sync.Mutex
	byAccount map[string]*session
	byName    map[string]*session
	all       map[*session]struct{}
}

func newRegistry() *registry {
	return &registry{
		byAccount: make(map[string]*session),
		byName:    make(map[string]*session),
		all:       make(map[*session]struct{}),
	}
}

// track registers a freshly accepted connection, before any authentication.
func (r *registry) track(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all[s] = struct{}{}
}

// bind associates an account with a session, enforcing one active session
// per account. The winner of a concurrent bind is decided under the lock.
func (r *registry) bind(account string, s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccount[account]; ok {
		return errAccountActive
	}
	r.byAccount[account] = s
	s.account = account
	return nil
}

// claimName associates a display name with a session. Exactly one of two
// racing claims for the same name succeeds.
func (r *registry) claimName(name string, s *session) error {
	if name == ReservedName {
		return errNameReserved
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return errNameTaken
	}
	r.byName[name] = s
	s.name = name
	return nil
}

// remove drops the session from every index atomically. Idempotent; reports
// whether the session held a display name, i.e. whether a departure
// broadcast is owed.
func (r *registry) remove(s *session) (hadName bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.all, s)
	if s.account != "" && r.byAccount[s.account] == s {
		delete(r.byAccount, s.account)
	}
	if s.name != "" && r.byName[s.name] == s {
		delete(r.byName, s.name)
		hadName = true
	}
	return hadName
}

// snapshot returns a point-in-time view of the active (named) sessions, the
// recipient set for one broadcast pass.
func (r *registry) snapshot() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*session, 0, len(r.byName))
	for _, s := range r.byName {
		sessions = append(sessions, s)
	}
	return sessions
}

// connections returns every tracked session, authenticated or not.
func (r *registry) connections() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*session, 0, len(r.all))
	for s := range r.all {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *registry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
