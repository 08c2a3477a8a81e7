package ulog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"
)

const (
	reassemblyCap   = 2048
	partialCap      = reassemblyCap / 2
	recordHeaderLen = 3
)

var (
	// ErrOverflow reports that staging a fragment would exceed the
	// reassembly capacity; the buffer is discarded and the caller must
	// re-synchronise on the next record boundary.
	ErrOverflow = errors.New("reassembly buffer overflow")

	// ErrCorrupt reports that the residual of a partially written
	// record does not fit the spill buffer. The file cannot be
	// continued without tearing a record, so writes for the session
	// must stop.
	ErrCorrupt = errors.New("partial record spill exceeds capacity, log file corrupt")
)

// wouldBlock reports a non-blocking write that found no room.
func wouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN)
}

// Reassembly stages the contiguous ULog byte stream until whole records
// are available, and holds the residual of a record whose file write
// came up short. While the residual is non-empty no new record may
// reach the file, or a torn record boundary would become observable.
type Reassembly struct {
	buf  [reassemblyCap]byte
	n    int
	part [partialCap]byte
	pn   int
}

func (r *Reassembly) Len() int { return r.n }

func (r *Reassembly) PartialLen() int { return r.pn }

// Reset discards staged and residual bytes.
func (r *Reassembly) Reset() {
	r.n = 0
	r.pn = 0
}

// Append stages b at the tail. On overflow the whole staging buffer is
// discarded and ErrOverflow returned; the residual spill is untouched
// because its bytes belong to a record already half on disk.
func (r *Reassembly) Append(b []byte) error {
	if r.n+len(b) > reassemblyCap {
		r.n = 0
		return ErrOverflow
	}
	copy(r.buf[r.n:], b)
	r.n += len(b)
	return nil
}

// Fits reports whether n more bytes fit the staging area.
func (r *Reassembly) Fits(n int) bool {
	return r.n+n <= reassemblyCap
}

// WriteDirect writes b straight to w, diverting whatever did not make
// it onto disk into the spill buffer. Used for the 16-byte file header
// which is not record-framed. Caller guarantees the spill is empty.
func (r *Reassembly) WriteDirect(w io.Writer, b []byte) error {
	written, err := w.Write(b)
	if written < 0 {
		written = 0
	}
	if written < len(b) {
		rest := b[written:]
		if r.pn+len(rest) > partialCap {
			return fmt.Errorf("%d residual bytes: %w", len(rest), ErrCorrupt)
		}
		copy(r.part[r.pn:], rest)
		r.pn += len(rest)
	}
	if err != nil && !wouldBlock(err) {
		return err
	}
	return nil
}

// FlushTo drives as many staged bytes to w as the file will take.
//
// The spill drains first; while any residual remains nothing else may
// be written. Then whole records go out one write each: a full write
// advances, EAGAIN leaves the record at the head for the next flush, a
// short write moves the remainder into the spill, and a short write too
// large for the spill declares the file corrupt. Write errors other
// than EAGAIN drop the current record and stop this flush; the session
// carries on.
func (r *Reassembly) FlushTo(w io.Writer) error {
	for r.pn > 0 {
		written, err := w.Write(r.part[:r.pn])
		if written > 0 {
			copy(r.part[0:], r.part[written:r.pn])
			r.pn -= written
		}
		if err != nil {
			if wouldBlock(err) {
				return nil
			}
			r.pn = 0
			return fmt.Errorf("drain partial record: %w", err)
		}
		if written == 0 {
			return nil
		}
	}

	for r.n >= recordHeaderLen {
		msgSize := binary.LittleEndian.Uint16(r.buf[0:2])
		msgType := r.buf[2]
		full := int(msgSize) + recordHeaderLen
		if full > r.n {
			return nil
		}
		written, err := w.Write(r.buf[:full])
		if written < 0 {
			written = 0
		}
		switch {
		case written == full:
			r.advance(full)
			if err != nil && !wouldBlock(err) {
				return fmt.Errorf("write record type %d size %d: %w", msgType, full, err)
			}
		case written > 0:
			rest := full - written
			if r.pn+rest > partialCap {
				r.advance(full)
				return fmt.Errorf("record type %d full size %d, residual %d: %w", msgType, full, rest, ErrCorrupt)
			}
			copy(r.part[r.pn:], r.buf[written:full])
			r.pn += rest
			r.advance(full)
			if err != nil && !wouldBlock(err) {
				return fmt.Errorf("short write record type %d: %w", msgType, err)
			}
			return nil
		case err != nil && wouldBlock(err):
			return nil
		case err != nil:
			r.advance(full)
			return fmt.Errorf("write record type %d size %d: %w", msgType, full, err)
		default:
			return nil
		}
	}
	return nil
}

func (r *Reassembly) advance(n int) {
	copy(r.buf[0:], r.buf[n:r.n])
	r.n -= n
}
