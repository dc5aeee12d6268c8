package core

import "time"

// sendBudget is a per-client token bucket measured in bytes. A send may
// overdraw the bucket so a full snapshot larger than the burst still goes out;
// the client then waits until the debt is repaid.
type sendBudget struct {
	rate   float64 // bytes per second
	burst  float64
	tokens float64
	last   time.Time
}

func newSendBudget(bytesPerSecond int, now time.Time) sendBudget {
	r := float64(bytesPerSecond)
	return sendBudget{rate: r, burst: r, tokens: r, last: now}
}

func (b *sendBudget) refill(now time.Time) {
	if dt := now.Sub(b.last); dt > 0 {
		b.tokens += b.rate * dt.Seconds()
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}
	b.last = now
}

// allow refills the bucket and spends n bytes if the bucket is not in debt.
func (b *sendBudget) allow(n int, now time.Time) bool {
	b.refill(now)
	if b.tokens <= 0 {
		return false
	}
	b.tokens -= float64(n)
	return true
}
