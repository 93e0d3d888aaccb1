package server

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	rateWindow = time.Minute
	sweepEvery = 5 * time.Minute
)

// quota is one client's request count within the current window.
type quota struct {
	used    int
	resetAt time.Time
}

// rateLimiter allows limit requests per client per minute. Expired quotas
// are swept lazily on the request path.
type rateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limit     int
	quotas    map[string]*quota
	nextSweep time.Time
	trusted   []netip.Prefix // peers whose forwarding headers are believed
}

func newRateLimiter(requestsPerMinute int, clock clockwork.Clock, trusted []netip.Prefix) *rateLimiter {
	return &rateLimiter{
		clock:     clock,
		limit:     requestsPerMinute,
		trusted:   trusted,
		quotas:    make(map[string]*quota),
		nextSweep: clock.Now().Add(sweepEvery),
	}
}

// take consumes one request for client and reports whether it is allowed,
// along with the remaining budget and the window reset time.
func (rl *rateLimiter) take(client string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	if now.After(rl.nextSweep) {
		for k, q := range rl.quotas {
			if now.After(q.resetAt) {
				delete(rl.quotas, k)
			}
		}
		rl.nextSweep = now.Add(sweepEvery)
	}

	q, ok := rl.quotas[client]
	if !ok || now.After(q.resetAt) {
		q = &quota{resetAt: now.Add(rateWindow)}
		rl.quotas[client] = q
	}
	q.used++
	remaining := rl.limit - q.used
	if remaining < 0 {
		remaining = 0
	}
	return q.used <= rl.limit, remaining, q.resetAt
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := rl.take(rl.clientIP(r))
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			wait := math.Ceil(resetAt.Sub(rl.clock.Now()).Seconds())
			if wait < 1 {
				wait = 1
			}
			h.Set("Retry-After", strconv.Itoa(int(wait)))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP identifies the caller by its peer address. Forwarding headers
// are read only when the peer is a trusted proxy.
func (rl *rateLimiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !rl.trustedPeer(host) {
		return host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return host
}

func (rl *rateLimiter) trustedPeer(host string) bool {
	if len(rl.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseTrustedProxies parses CIDRs or bare addresses.
func parseTrustedProxies(specs []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if !strings.Contains(spec, "/") {
			addr, err := netip.ParseAddr(spec)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", spec, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(spec)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", spec, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
