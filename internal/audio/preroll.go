package audio

// PreRoll is a bounded FIFO of raw audio frames collected ahead of a
// detected speech onset. Flushing it into a freshly started transcription
// session keeps utterance onsets from being clipped. When full, the oldest
// frame is dropped. Not safe for concurrent use; the frame loop is the only
// caller.
type PreRoll struct {
	frames   [][]byte
	capacity int
}

// NewPreRoll creates a pre-roll buffer holding up to capacity frames
func NewPreRoll(capacity int) *PreRoll {
	if capacity < 0 {
		capacity = 0
	}
	return &PreRoll{
		frames:   make([][]byte, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, dropping the oldest when at capacity. The frame is
// copied so callers may reuse their buffer.
func (p *PreRoll) Push(frame []byte) {
	if p.capacity == 0 {
		return
	}
	if len(p.frames) == p.capacity {
		copy(p.frames, p.frames[1:])
		p.frames = p.frames[:len(p.frames)-1]
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	p.frames = append(p.frames, buf)
}

// Flush delivers all buffered frames to fn in arrival order, then clears
// the buffer. Delivery stops at the first error; the buffer is cleared
// regardless.
func (p *PreRoll) Flush(fn func(frame []byte) error) error {
	var err error
	for _, f := range p.frames {
		if err = fn(f); err != nil {
			break
		}
	}
	p.Clear()
	return err
}

// Clear discards all buffered frames
func (p *PreRoll) Clear() {
	p.frames = p.frames[:0]
}

// Len returns the number of buffered frames
func (p *PreRoll) Len() int {
	return len(p.frames)
}
