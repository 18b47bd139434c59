package main

import (
	"bytes"
	"fmt"
)

// errLineTooLong means a client sent more than the inbound cap without
// terminating a line.
var errLineTooLong = fmt.Errorf("Input line too long")

// frameReader splits a byte stream into protocol lines. It keeps any partial
// line between reads.
type frameReader struct {
	buf []byte

	// Accept a bare LF as a terminator as well as CRLF.
	lenient bool

	// Most bytes we hold without seeing a terminator. 0 means no limit.
	maxLen int
}

// feed appends newly read bytes and returns every complete line now
// available, terminators stripped. Lines may be empty. They are copies and
// stay valid after further feeds.
func (f *frameReader) feed(data []byte) ([]string, error) {
	f.buf = append(f.buf, data...)

	var lines []string
	for {
		line, ok := f.next()
		if !ok {
			break
		}
		lines = append(lines, line)
	}

	if f.maxLen > 0 && len(f.buf) > f.maxLen {
		return lines, errLineTooLong
	}

	return lines, nil
}

func (f *frameReader) next() (string, bool) {
	if f.lenient {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx == -1 {
			return "", false
		}

		end := idx
		if end > 0 && f.buf[end-1] == '\r' {
			end--
		}

		line := string(f.buf[:end])
		f.buf = f.buf[idx+1:]
		return line, true
	}

	idx := bytes.Index(f.buf, []byte("\r\n"))
	if idx == -1 {
		return "", false
	}

	line := string(f.buf[:idx])
	f.buf = f.buf[idx+2:]
	return line, true
}

// pending is how many bytes are held waiting for a terminator.
func (f *frameReader) pending() int {
	return len(f.buf)
}
