package http

import (
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultJoinIdle = 10 * time.Minute

// ThrottleConfig sets the per-address join budget.
type ThrottleConfig struct {
	Rate  rate.Limit
	Burst int
	// Idle is how long an address keeps its bucket after its last join attempt.
	Idle time.Duration
}

// JoinThrottle limits join attempts per client address so nobody can walk the
// 4-digit code space from one machine.
type JoinThrottle struct {
	cfg ThrottleConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*joinBucket

	done     chan struct{}
	stopOnce sync.Once
}

type joinBucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

func NewJoinThrottle(cfg ThrottleConfig) *JoinThrottle {
	if cfg.Idle <= 0 {
		cfg.Idle = defaultJoinIdle
	}
	t := &JoinThrottle{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*joinBucket),
		done:    make(chan struct{}),
	}
	go t.sweepLoop(cfg.Idle / 2)
	return t
}

// Stop ends the background sweep. It is safe to call more than once.
func (t *JoinThrottle) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// take spends one token for addr. When none is left it reports how long the
// caller should wait before trying again.
func (t *JoinThrottle) take(addr string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[addr]
	if !ok {
		b = &joinBucket{tokens: rate.NewLimiter(t.cfg.Rate, t.cfg.Burst)}
		t.buckets[addr] = b
	}
	b.seen = now

	res := b.tokens.ReserveN(now, 1)
	if !res.OK() {
		return false, t.cfg.Idle
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweep drops buckets whose address has been quiet for longer than Idle.
func (t *JoinThrottle) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.cfg.Idle)
	dropped := 0
	for addr, b := range t.buckets {
		if b.seen.Before(cutoff) {
			delete(t.buckets, addr)
			dropped++
		}
	}
	return dropped
}

func (t *JoinThrottle) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// Middleware answers 429 with a Retry-After header once an address is out of tokens.
func (t *JoinThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := remoteHost(r)
		ok, wait := t.take(addr)
		if !ok {
			log.Printf("join throttled: addr=%s retry=%s", addr, wait)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many join attempts, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteHost uses RemoteAddr only; forwarding headers can be forged without a trusted proxy.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
