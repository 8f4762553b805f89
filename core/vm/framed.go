package vm

// Framed collects events emitted during EVM execution, grouped by call
// frame. Reverting a frame discards every event added since the frame was
// entered, including those of nested frames that had already exited.
type Framed[T any] struct {
	events     []T
	boundaries []int
}

// Len returns the number of events held, including events of frames that
// may still revert.
func (f *Framed[T]) Len() int { return len(f.events) }

// IsEmpty reports whether no events are held.
func (f *Framed[T]) IsEmpty() bool { return len(f.events) == 0 }

// EnterFrame opens a new frame.
func (f *Framed[T]) EnterFrame() {
	f.boundaries = append(f.boundaries, len(f.events))
}

// ExitFrame closes the current frame, keeping its events in the parent.
func (f *Framed[T]) ExitFrame() {
	if n := len(f.boundaries); n > 0 {
		f.boundaries = f.boundaries[:n-1]
	}
}

// RevertFrame closes the current frame and drops its events.
func (f *Framed[T]) RevertFrame() {
	n := len(f.boundaries)
	if n == 0 {
		return
	}
	start := f.boundaries[n-1]
	f.boundaries = f.boundaries[:n-1]
	clear(f.events[start:])
	f.events = f.events[:start]
}

// Add appends an event to the current frame.
func (f *Framed[T]) Add(ev T) {
	f.events = append(f.events, ev)
}

// IsComplete reports whether every opened frame has been closed.
func (f *Framed[T]) IsComplete() bool { return len(f.boundaries) == 0 }

// Events returns the surviving events in emission order.
func (f *Framed[T]) Events() []T { return f.events }

// Reset clears all events and frames.
func (f *Framed[T]) Reset() {
	f.events = nil
	f.boundaries = f.boundaries[:0]
}
