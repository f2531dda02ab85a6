package vobj

// window is a fixed-capacity ring buffer of an attribute's most recent
// values, stamped with the step of the last write.
type window struct {
	buf     []any
	start   int
	n       int
	last    int64
	written bool
}

func newWindow(capacity int) *window {
	return &window{buf: make([]any, capacity)}
}

// put stores v for step. A second write on the same step replaces the entry
// for that step; otherwise the oldest entry is evicted once full.
func (w *window) put(step int64, v any) {
	c := len(w.buf)
	switch {
	case w.written && step == w.last:
		w.buf[(w.start+w.n-1)%c] = v
	case w.n < c:
		w.buf[(w.start+w.n)%c] = v
		w.n++
	default:
		w.buf[w.start] = v
		w.start = (w.start + 1) % c
	}
	w.last = step
	w.written = true
}

// writtenAt reports whether the last write happened on step.
func (w *window) writtenAt(step int64) bool {
	return w.written && w.last == step
}

// latest returns the last written value.
func (w *window) latest() any {
	if w.n == 0 {
		return nil
	}
	return w.buf[(w.start+w.n-1)%len(w.buf)]
}

// at returns the entry for offset relative to current (-1 = current step),
// or nil when it lies outside the retained range.
func (w *window) at(offset int, current int64) any {
	if !w.written {
		return nil
	}
	back := -(offset + int(current-w.last)) // 1 = last written
	if back < 1 || back > w.n {
		return nil
	}
	return w.buf[(w.start+w.n-back)%len(w.buf)]
}

// values returns the retained entries, oldest first.
func (w *window) values() []any {
	out := make([]any, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

func (w *window) clone() *window {
	c := *w
	c.buf = append([]any(nil), w.buf...)
	return &c
}
