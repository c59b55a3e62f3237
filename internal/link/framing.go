package link

import "bytes"

// lineBuffer accumulates raw bytes from the transport and yields one
// complete newline-terminated record at a time. A trailing partial record
// stays buffered until a later write completes it. The buffer grows as
// needed; peers on this protocol send short records.
type lineBuffer struct {
	buf []byte
}

func (b *lineBuffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

// Next returns the next complete record without its terminator. Empty
// records are skipped. ok is false when no complete record is buffered.
func (b *lineBuffer) Next() (line []byte, ok bool) {
	for {
		idx := bytes.IndexByte(b.buf, '\n')
		if idx < 0 {
			return nil, false
		}
		line = bytes.TrimRight(b.buf[:idx], "\r")
		b.buf = b.buf[idx+1:]
		if len(line) == 0 {
			continue
		}

		return line, true
	}
}

// Pending reports how many bytes of an incomplete record are buffered.
func (b *lineBuffer) Pending() int {
	return len(b.buf)
}
