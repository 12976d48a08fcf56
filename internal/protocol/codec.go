package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes bounds a single wire line; a malformed or hostile client
// writing an unbounded line should not grow the daemon's heap unbounded.
const maxLineBytes = 1 << 20

// Decoder reads newline-delimited JSON envelopes off a connection, the same
// bufio.Scanner shape the teacher uses to read the state log
// (internal/collector/statelog.go).
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{scanner: scanner}
}

// DecodeRequest reads the next line and decodes it as a Request. io.EOF is
// returned verbatim so callers can distinguish "connection closed" from a
// decode error.
func (d *Decoder) DecodeRequest() (Request, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return Request{}, err
		}
		return Request{}, io.EOF
	}
	var req Request
	if err := json.Unmarshal(d.scanner.Bytes(), &req); err != nil {
		return Request{}, fmt.Errorf("bad request: %w", err)
	}
	return req, nil
}

// DecodeResponse reads the next line and decodes it as a Response. Used by
// the client library, which must tolerate DataUpdate events interleaved
// between a request and its response (spec §4.2 ordering rule).
func (d *Decoder) DecodeResponse() (Response, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return Response{}, err
		}
		return Response{}, io.EOF
	}
	var resp Response
	if err := json.Unmarshal(d.scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("bad response: %w", err)
	}
	return resp, nil
}

// Encoder writes one JSON object per line to an io.Writer.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) EncodeRequest(req Request) error {
	return e.encode(req)
}

func (e *Encoder) EncodeResponse(resp Response) error {
	return e.encode(resp)
}

func (e *Encoder) encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = e.w.Write(data)
	return err
}
