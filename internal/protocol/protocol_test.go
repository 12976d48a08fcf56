package protocol

import (
	"bytes"
	"io"
	"testing"
)

// TestRoundTrip exercises invariant 5 from the spec: every request and
// response, serialized then parsed, is structurally equal to the original.
func TestRoundTrip_Request(t *testing.T) {
	from := int64(100)
	to := int64(200)
	req := Request{Kind: KindGetHourlyStats, FromTS: &from, ToTS: &to}

	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeRequest(req); err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	got, err := NewDecoder(&buf).DecodeRequest()
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if got.Kind != req.Kind || *got.FromTS != *req.FromTS || *got.ToTS != *req.ToTS {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestRoundTrip_Response(t *testing.T) {
	resp := Response{Kind: KindOk}

	var buf bytes.Buffer
	if err := NewEncoder(&buf).EncodeResponse(resp); err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	got, err := NewDecoder(&buf).DecodeResponse()
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if got.Kind != resp.Kind {
		t.Fatalf("Kind = %q, want %q", got.Kind, resp.Kind)
	}
}

func TestDecoder_MultipleLinesInOrder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	_ = enc.EncodeResponse(Response{Kind: KindOk})
	_ = enc.EncodeResponse(Response{Kind: KindDataUpdate})
	_ = enc.EncodeResponse(Response{Kind: KindSubscribed})

	dec := NewDecoder(&buf)
	var kinds []Kind
	for {
		r, err := dec.DecodeResponse()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("DecodeResponse() error = %v", err)
		}
		kinds = append(kinds, r.Kind)
	}
	want := []Kind{KindOk, KindDataUpdate, KindSubscribed}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestSupportedBy(t *testing.T) {
	status := DaemonStatus{ProtocolVersion: 3, MinSupportedVersion: 2}
	if SupportedBy(status, 1) {
		t.Fatal("client version 1 should be unsupported when min=2")
	}
	if !SupportedBy(status, 2) {
		t.Fatal("client version 2 should be supported")
	}
	if !SupportedBy(status, 3) {
		t.Fatal("client version 3 should be supported")
	}
	if SupportedBy(status, 4) {
		t.Fatal("client version 4 should be unsupported when current=3")
	}
}
