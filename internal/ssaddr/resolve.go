package ssaddr

import (
	"context"
	"fmt"
	"net"
)

// ErrDnsFailure is returned when a hostname lookup returns no records.
var ErrDnsFailure = fmt.Errorf("ssaddr: dns lookup returned no records")

// LookupAsync resolves a's Text on its own goroutine and installs the
// result on a before invoking done. If a already has an IP (literal
// address, or a previous successful lookup), done is invoked immediately
// with success, matching the original Address::lookUp() short-circuit.
//
// done is called exactly once. It may run on a goroutine other than the
// caller's; callers that touch relay state from done must hop back onto
// their own loop (e.g. via a channel) if they share state with other
// goroutines.
func LookupAsync(ctx context.Context, a *Address, done func(success bool, err error)) {
	if a.HasIP() {
		done(true, nil)
		return
	}

	go func() {
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", a.Text)
		if err != nil {
			done(false, fmt.Errorf("ssaddr: lookup %q: %w", a.Text, err))
			return
		}
		if len(ips) == 0 {
			done(false, ErrDnsFailure)
			return
		}
		a.SetIPs(ips)
		done(true, nil)
	}()
}

// ResolveBlocking performs a synchronous lookup of a's Text and installs
// the result. Used once at controller startup for the server address, and
// as the one-shot blocking fallback for an unresolved UDP destination
// (spec's documented TODO path — kept synchronous here deliberately,
// an async variant is equally acceptable and is what LookupAsync is for).
func ResolveBlocking(ctx context.Context, a *Address) error {
	if a.HasIP() {
		return nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", a.Text)
	if err != nil {
		return fmt.Errorf("ssaddr: lookup %q: %w", a.Text, err)
	}
	if len(ips) == 0 {
		return ErrDnsFailure
	}
	a.SetIPs(ips)
	return nil
}
