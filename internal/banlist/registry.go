// Package banlist implements the server-side anti-probing policy: a
// process-wide registry of banned peer IPs, escalated from repeated
// malformed traffic rather than a single failure.
package banlist

import "sync"

// Registry tracks banned peer IPs plus the failure history used to decide
// when a peer earns a ban. There is no persistence and no expiry — a ban
// lasts for the lifetime of the process, matching the original design's
// "no TTL, no disk state" anti-probing policy.
type Registry struct {
	mu        sync.RWMutex
	banned    map[string]struct{}
	failedIVs map[string]struct{}
	failedIPs map[string]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		banned:    make(map[string]struct{}),
		failedIVs: make(map[string]struct{}),
		failedIPs: make(map[string]struct{}),
	}
}

// IsBanned reports whether ip is currently in the ban set.
func (r *Registry) IsBanned(ip string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, banned := r.banned[ip]
	return banned
}

// Ban adds ip to the ban set unconditionally. Exposed for an operator
// command or config-driven static blocklist; RecordFailure is what the
// relay calls on each malformed packet.
func (r *Registry) Ban(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned[ip] = struct{}{}
}

// RecordFailure reports one malformed-header or malformed-IV event from
// ip, with iv identifying the offending IV/salt (as a string — callers
// typically pass a hex or raw-byte conversion of the prefix that failed to
// parse). It returns true if this failure escalated ip to banned.
//
// The escalation rule: if either this exact iv has failed before (from any
// IP) or this ip has failed before (with any IV), ip is banned now. A
// completely fresh (ip, iv) pair is recorded in both failure sets but does
// not yet ban — only repetition does.
func (r *Registry) RecordFailure(ip, iv string) (banned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ivSeen := r.failedIVs[iv]
	_, ipSeen := r.failedIPs[ip]

	if ivSeen || ipSeen {
		r.banned[ip] = struct{}{}
		return true
	}

	r.failedIVs[iv] = struct{}{}
	r.failedIPs[ip] = struct{}{}
	return false
}
