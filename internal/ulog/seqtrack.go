package ulog

// SequenceTracker classifies incoming 16-bit fragment sequence numbers
// into in-order, forward gap, or retransmission. The half-window rule
// keeps the classification correct across counter wrap: anything less
// than 2^15 ahead of the expected value is a gap, everything else is a
// stale retransmit. Ties at exactly 2^15 count as retransmits so a
// pathological reorder cannot trigger a spurious gap flush.
type SequenceTracker struct {
	expected uint16
}

// Track classifies seq and advances the expectation when the fragment
// is accepted. dropGap reports that one or more fragments between the
// expected and the received sequence were lost.
func (t *SequenceTracker) Track(seq uint16) (accept bool, dropGap bool) {
	if seq == t.expected {
		t.expected = seq + 1
		return true, false
	}
	ahead := seq - t.expected
	if ahead < 1<<15 {
		t.expected = seq + 1
		return true, true
	}
	return false, false
}

// Reset rewinds the tracker to the start of a session.
func (t *SequenceTracker) Reset() {
	t.expected = 0
}

// Expected exposes the next sequence the tracker will take in order.
func (t *SequenceTracker) Expected() uint16 {
	return t.expected
}
