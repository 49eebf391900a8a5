package authapi

import (
	"net"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/time/rate"
)

// idleEvict is how long an untouched bucket is kept before a sweep drops it.
const idleEvict = 30 * time.Minute

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ipLimiter holds one token bucket per client address.
type ipLimiter struct {
	every   rate.Limit
	burst   int
	buckets cmap.ConcurrentMap[string, *ipBucket]
}

func newIPLimiter(max int, window time.Duration) *ipLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &ipLimiter{
		every:   rate.Every(window / time.Duration(max)),
		burst:   max,
		buckets: cmap.New[*ipBucket](),
	}
}

// allow spends one token for ip. When the bucket is empty it reports how long
// until the next token.
func (l *ipLimiter) allow(ip net.IP, now time.Time) (bool, time.Duration) {
	if l == nil || ip == nil {
		return true, 0
	}
	b := l.buckets.Upsert(ip.String(), nil, func(exist bool, old, _ *ipBucket) *ipBucket {
		if exist {
			old.seen = now
			return old
		}
		return &ipBucket{lim: rate.NewLimiter(l.every, l.burst), seen: now}
	})

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

// sweep drops buckets idle since before now-idleEvict.
func (l *ipLimiter) sweep(now time.Time) int {
	if l == nil {
		return 0
	}
	cut := now.Add(-idleEvict)
	n := 0
	for _, key := range l.buckets.Keys() {
		if l.buckets.RemoveCb(key, func(_ string, b *ipBucket, exists bool) bool {
			return exists && b.seen.Before(cut)
		}) {
			n++
		}
	}
	return n
}
