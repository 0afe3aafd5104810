// Package tracefile reads the fixed 24-byte binary reference-record
// format this module's external interface specifies. It lives outside
// the core simulation packages on purpose: the trace front-end is a
// non-goal of the core, and nothing under mem/ or pipeline/ imports this
// package.
package tracefile

import (
	"encoding/binary"
	"io"
	"log"

	"github.com/sarchlab/pagewalk/pipeline"
)

const recordSize = 24

// Reader reads fixed-layout 24-byte reference records from an underlying
// io.Reader: pc (u64), vaddr (u64), size (u32), read (u32), all
// little-endian. A short read at EOF is not fatal -- it is logged and
// treated as the end of the trace.
type Reader struct {
	r   io.Reader
	buf [recordSize]byte
}

// New wraps r as a Reader.
func New(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads the next record, returning done=true once the underlying
// reader is exhausted. A partial record at EOF is skipped with a warning
// and also reported as done, per this module's non-fatal trace-format
// error handling.
func (r *Reader) Next() (ref pipeline.Reference, done bool) {
	n, err := io.ReadFull(r.r, r.buf[:])
	if err == io.EOF {
		return pipeline.Reference{}, true
	}
	if err == io.ErrUnexpectedEOF {
		log.Printf("tracefile: short record (%d of %d bytes) at EOF, skipping", n, recordSize)
		return pipeline.Reference{}, true
	}
	if err != nil {
		log.Printf("tracefile: read error: %v", err)
		return pipeline.Reference{}, true
	}

	pc := binary.LittleEndian.Uint64(r.buf[0:8])
	vaddr := binary.LittleEndian.Uint64(r.buf[8:16])
	size := binary.LittleEndian.Uint32(r.buf[16:20])
	read := binary.LittleEndian.Uint32(r.buf[20:24])

	return pipeline.Reference{
		PC:      pc,
		Vaddr:   vaddr,
		Size:    size,
		IsWrite: read == 0,
	}, false
}

// ReadAll drains r entirely into a slice, for small traces and tests.
func ReadAll(r io.Reader) []pipeline.Reference {
	reader := New(r)
	var refs []pipeline.Reference
	for {
		ref, done := reader.Next()
		if done {
			return refs
		}
		refs = append(refs, ref)
	}
}
