package ulog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrBadHeader reports a file shorter than the 16-byte header or
	// not beginning with the 7-byte ULog magic. The version byte is not
	// checked.
	ErrBadHeader = errors.New("not a ULog file")
)

// RecordInfo describes one record encountered while walking a file.
type RecordInfo struct {
	Offset  int64
	MsgType uint8
	MsgSize uint16
}

// FileIndex summarises a captured .ulg file.
type FileIndex struct {
	Version     uint8
	TimestampUs uint64
	Records     int
	DataBytes   int64
	TypeCounts  map[uint8]int
	// Truncated marks a trailing record whose declared size runs past
	// the end of the file; TruncatedAt is its offset. A capture cut off
	// mid-flush ends this way and everything before it is still valid.
	Truncated   bool
	TruncatedAt int64
}

// Reader walks the records of a captured .ulg file.
type Reader struct {
	f      *os.File
	br     *bufio.Reader
	offset int64
	index  FileIndex
}

// NewReader opens path and validates the 16-byte file header.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{f: f, br: bufio.NewReader(f)}

	header := make([]byte, ulogHeaderLen)
	if _, err := io.ReadFull(r.br, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("read file header: %w", ErrBadHeader)
	}
	if !bytes.Equal(header[:len(ulogMagic)], ulogMagic) {
		f.Close()
		return nil, fmt.Errorf("magic mismatch: %w", ErrBadHeader)
	}
	r.index.Version = header[7]
	r.index.TimestampUs = binary.LittleEndian.Uint64(header[8:16])
	r.index.TypeCounts = make(map[uint8]int)
	r.offset = ulogHeaderLen
	return r, nil
}

// Next returns the next record header, skipping over the body. io.EOF
// signals a clean end; a record cut off mid-body marks the index
// truncated and also ends the walk with io.EOF.
func (r *Reader) Next() (RecordInfo, error) {
	var hdr [recordHeaderLen]byte
	n, err := io.ReadFull(r.br, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return RecordInfo{}, io.EOF
		}
		r.index.Truncated = true
		r.index.TruncatedAt = r.offset
		return RecordInfo{}, io.EOF
	}

	info := RecordInfo{
		Offset:  r.offset,
		MsgSize: binary.LittleEndian.Uint16(hdr[0:2]),
		MsgType: hdr[2],
	}
	skipped, err := r.br.Discard(int(info.MsgSize))
	if skipped < int(info.MsgSize) {
		r.index.Truncated = true
		r.index.TruncatedAt = r.offset
		return RecordInfo{}, io.EOF
	}
	if err != nil {
		return RecordInfo{}, err
	}

	r.offset += int64(recordHeaderLen) + int64(info.MsgSize)
	r.index.Records++
	r.index.DataBytes += int64(info.MsgSize)
	r.index.TypeCounts[info.MsgType]++
	return info, nil
}

// Index returns the summary accumulated so far; complete once Next has
// returned io.EOF.
func (r *Reader) Index() FileIndex {
	return r.index
}

func (r *Reader) Close() error {
	return r.f.Close()
}

// ScanFile walks the whole file and returns its index.
func ScanFile(path string) (FileIndex, error) {
	r, err := NewReader(path)
	if err != nil {
		return FileIndex{}, err
	}
	defer r.Close()
	for {
		if _, err := r.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return r.Index(), err
		}
	}
	return r.Index(), nil
}
