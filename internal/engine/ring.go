package engine

// tokenRing is a fixed-capacity ring of the most recent generated
// token ids, consulted by the repeat penalty. Capacity 0 disables it.
type tokenRing struct {
	buf  []int
	head int
	n    int
}

func newTokenRing(capacity int) *tokenRing {
	return &tokenRing{buf: make([]int, capacity)}
}

func (r *tokenRing) Push(id int) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.head] = id
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// Window returns the buffered ids oldest-first.
func (r *tokenRing) Window() []int {
	if r.n == 0 {
		return nil
	}
	out := make([]int, 0, r.n)
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *tokenRing) Len() int { return r.n }
