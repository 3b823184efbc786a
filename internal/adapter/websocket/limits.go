package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateLimiterIdleTTL   = 10 * time.Minute
	rateLimiterSweepStep = 5 * time.Minute
)

// LimitReason describes why a connection attempt was refused. It is used as a metric label.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// LimitsConfig bounds connection admission. A non-positive value disables that limit.
type LimitsConfig struct {
	MaxConnections      int
	MaxConnectionsPerIP int
	ConnectionsPerSec   float64
	Burst               int
}

// ConnectionLimits gates WebSocket upgrades by a global cap, a per-IP cap
// and a per-IP token-bucket rate. Acquire and Release must be paired.
type ConnectionLimits struct {
	clock clockwork.Clock

	maxTotal int64
	total    atomic.Int64

	maxPerIP int
	ipMu     sync.Mutex
	perIP    map[string]int

	rate      rate.Limit
	burst     int
	rateMu    sync.Mutex
	limiters  map[string]*ipRateLimiter
	nextSweep time.Time
}

type ipRateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(cfg LimitsConfig, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		maxTotal:  int64(cfg.MaxConnections),
		maxPerIP:  cfg.MaxConnectionsPerIP,
		perIP:     make(map[string]int),
		rate:      rate.Limit(cfg.ConnectionsPerSec),
		burst:     cfg.Burst,
		limiters:  make(map[string]*ipRateLimiter),
		nextSweep: clock.Now().Add(rateLimiterSweepStep),
	}
}

// Acquire reserves a connection slot for ip. The rate check runs first; a
// per-IP refusal rolls back the global reservation.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}
	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}
	if !l.acquirePerIP(ip) {
		l.total.Add(-1)
		return false, LimitReasonPerIP
	}
	return true, ""
}

// Release frees the slot taken by a successful Acquire for ip.
func (l *ConnectionLimits) Release(ip string) {
	l.ipMu.Lock()
	if count := l.perIP[ip]; count > 1 {
		l.perIP[ip] = count - 1
	} else {
		delete(l.perIP, ip)
	}
	l.ipMu.Unlock()

	l.total.Add(-1)
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int64 {
	return l.total.Load()
}

// CountIP returns the number of slots held by ip.
func (l *ConnectionLimits) CountIP(ip string) int {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()
	return l.perIP[ip]
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.total.Load()
		if l.maxTotal > 0 && current >= l.maxTotal {
			return false
		}
		if l.total.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) acquirePerIP(ip string) bool {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()

	if l.maxPerIP > 0 && l.perIP[ip] >= l.maxPerIP {
		return false
	}
	l.perIP[ip]++
	return true
}

func (l *ConnectionLimits) allowRate(ip string) bool {
	if l.rate <= 0 {
		return true
	}

	l.rateMu.Lock()
	defer l.rateMu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		cutoff := now.Add(-rateLimiterIdleTTL)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.nextSweep = now.Add(rateLimiterSweepStep)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipRateLimiter{limiter: rate.NewLimiter(l.rate, max(l.burst, 1))}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *ConnectionLimits) trackedIPs() int {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()
	return len(l.limiters)
}
