package couchdb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrMalformedChange indicates a feed line that could not be decoded. The
// stream remains usable; callers should log and continue.
var ErrMalformedChange = errors.New("malformed change record")

// Changes feed read limits. Source documents embed their full body in each
// record, so lines can be large. A record over the cap is discarded and
// reported as malformed; it cannot be ingested, and treating it as a stream
// error would make the listener reconnect onto the same record forever since
// the checkpoint has not advanced past it.
const (
	changeReadBuffer  = 64 * 1024
	changeMaxLineSize = 16 * 1024 * 1024
)

// Changes opens a continuous changes feed starting after the given sequence
// token. The returned stream stays open until the server drops it, the
// context is canceled, or Close is called.
func (c *Client) Changes(ctx context.Context, since string) (*ChangeStream, error) {
	reqURL := fmt.Sprintf(
		"%s/%s/_changes?feed=continuous&include_docs=true&since=%s&heartbeat=true",
		c.baseURL, c.database, since,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create changes request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("changes request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("changes feed error (status %d): %s", resp.StatusCode, string(body))
	}

	return newChangeStream(resp.Body), nil
}

// ChangeStream reads newline-delimited change records from an open feed.
type ChangeStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	maxLine int
}

func newChangeStream(body io.ReadCloser) *ChangeStream {
	return &ChangeStream{
		body:    body,
		reader:  bufio.NewReaderSize(body, changeReadBuffer),
		maxLine: changeMaxLineSize,
	}
}

// Next returns the next change record. Blank heartbeat lines and feed
// bookkeeping lines (no seq, no id) are skipped internally. A line that
// fails to decode, or exceeds the line cap, returns ErrMalformedChange
// without ending the stream. Transport errors and normal termination are
// terminal; termination is reported as io.EOF.
func (s *ChangeStream) Next() (*Change, error) {
	for {
		line, err := s.readLine()
		if err != nil {
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			// Heartbeat.
			continue
		}

		var change Change
		if err := json.Unmarshal(line, &change); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedChange, truncateLine(line))
		}

		if change.Seq == "" && change.ID == "" {
			// Feed bookkeeping such as a trailing {"last_seq": ...}.
			continue
		}

		return &change, nil
	}
}

// readLine reads one newline-terminated line. A line over the cap is read
// to its end, thrown away, and reported as ErrMalformedChange so the caller
// skips the record and the feed keeps going.
func (s *ChangeStream) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > s.maxLine {
			// A complete or EOF-terminated line has nothing left to skip;
			// a buffer-full read still has the line's tail pending.
			if errors.Is(err, bufio.ErrBufferFull) {
				if derr := s.discardLine(); derr != nil {
					return nil, derr
				}
			}
			return nil, fmt.Errorf("%w: record exceeds %d bytes", ErrMalformedChange, s.maxLine)
		}
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		default:
			return nil, err
		}
	}
}

// discardLine consumes the remainder of an oversized line.
func (s *ChangeStream) discardLine() error {
	for {
		_, err := s.reader.ReadSlice('\n')
		switch {
		case err == nil, errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return err
		}
	}
}

// Close releases the underlying response body.
func (s *ChangeStream) Close() error {
	return s.body.Close()
}

func truncateLine(line []byte) string {
	const max = 200
	if len(line) <= max {
		return string(line)
	}
	return string(line[:max]) + "..."
}
