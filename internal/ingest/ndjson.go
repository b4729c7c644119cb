package ingest

import (
	"bytes"

	"github.com/ncubeanalytics/ingest/internal/apperror"
)

// lineScanner incrementally frames a byte stream into newline-delimited
// lines as chunks arrive, so a body that never contains a newline still
// gets rejected at maxLine bytes instead of growing unbounded in memory.
//
// Framing is ported from the original single-shot split_newlines: a line
// is delimited by \n or \r\n; runs of blank separators collapse (a line
// of zero length between two separators is simply skipped, never
// emitted); a lone \r with no following \n is not a separator. The
// trailing fragment after the last separator is not a complete line
// until Flush is called at end of stream. Every completed line, and the
// unterminated remainder, is checked against maxLine independently —
// the cap applies per line, not to the stream as a whole.
type lineScanner struct {
	buf     []byte
	maxLine int
}

func newLineScanner(maxLine int) *lineScanner {
	return &lineScanner{maxLine: maxLine}
}

// Feed appends chunk to the internal buffer and returns every line it
// completes. It returns a PayloadTooLarge error as soon as a completed
// line, or the unterminated remainder, exceeds maxLine; the lines found
// before the offending one are still returned.
func (s *lineScanner) Feed(chunk []byte) ([][]byte, error) {
	s.buf = append(s.buf, chunk...)

	lines, rest, err := extractLines(s.buf, s.maxLine)
	s.buf = rest
	if err != nil {
		return lines, err
	}

	if s.maxLine > 0 && len(s.buf) > s.maxLine {
		return lines, apperror.New(apperror.CodePayloadTooLarge, "line exceeds max_event_size_bytes")
	}
	return lines, nil
}

// Flush returns the trailing fragment, if any, as a final raw line. Call
// once at end of stream; the scanner is spent afterward.
func (s *lineScanner) Flush() []byte {
	rest := s.buf
	s.buf = nil
	if len(rest) == 0 {
		return nil
	}
	return rest
}

// extractLines finds every \n-terminated segment in data, applying the
// split_newlines rules, and returns the completed lines plus whatever
// unterminated remainder trails the last separator. It stops as soon as
// a completed line exceeds maxLine (0 means unbounded), returning the
// lines found so far and leaving the offending line (and anything after
// it) in rest.
func extractLines(data []byte, maxLine int) (lines [][]byte, rest []byte, err error) {
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}

		if idx == 0 {
			// blank line (bare \n)
			data = data[1:]
			continue
		}
		if idx == 1 && data[0] == '\r' {
			// blank line (\r\n)
			data = data[2:]
			continue
		}

		left := data[:idx]
		if left[len(left)-1] == '\r' {
			left = left[:len(left)-1]
		}

		if maxLine > 0 && len(left) > maxLine {
			return lines, data, apperror.New(apperror.CodePayloadTooLarge, "line exceeds max_event_size_bytes")
		}

		data = data[idx+1:]
		if len(left) > 0 {
			lines = append(lines, left)
		}
	}
	return lines, data, nil
}
