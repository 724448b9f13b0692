package service

import "github.com/rl1809/cart-sync/internal/core/domain"

// verdictRing keeps the newest cap verdicts, evicting the oldest first.
type verdictRing struct {
	buf   []domain.Verdict
	start int
	size  int
}

func newVerdictRing(capacity int) *verdictRing {
	if capacity < 1 {
		capacity = 1
	}
	return &verdictRing{buf: make([]domain.Verdict, capacity)}
}

func (r *verdictRing) push(v domain.Verdict) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *verdictRing) len() int {
	return r.size
}

// last returns up to n of the newest verdicts, oldest first.
func (r *verdictRing) last(n int) []domain.Verdict {
	if n > r.size {
		n = r.size
	}
	out := make([]domain.Verdict, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *verdictRing) newest() (domain.Verdict, bool) {
	if r.size == 0 {
		return domain.Verdict{}, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

func (r *verdictRing) all() []domain.Verdict {
	return r.last(r.size)
}
