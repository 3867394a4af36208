package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	frame := EncodeRequest("get-steps", []byte(`{"scopes":["default"]}`))
	r := NewReader(bytes.NewReader(frame))
	payload, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	req, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Method != "get-steps" {
		t.Fatalf("Method = %q, want get-steps", req.Method)
	}
	if string(req.Body) != `{"scopes":["default"]}` {
		t.Fatalf("Body = %q", req.Body)
	}
}

func TestReaderToleratesChunkedDelivery(t *testing.T) {
	frame := EncodeRequest("done", []byte(`{"id":"s1"}`))
	pr, pw := io.Pipe()
	go func() {
		for _, b := range frame {
			_, _ = pw.Write([]byte{b})
		}
		_ = pw.Close()
	}()
	r := NewReader(pr)
	payload, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	req, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Method != "done" {
		t.Fatalf("Method = %q, want done", req.Method)
	}
}

func TestReaderReadsMultipleFramesFromOneConn(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeRequest("a", []byte("1")))
	buf.Write(EncodeRequest("b", []byte("2")))
	r := NewReader(&buf)

	p1, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame 1: %v", err)
	}
	req1, _ := DecodeRequest(p1)
	if req1.Method != "a" {
		t.Fatalf("first method = %q", req1.Method)
	}

	p2, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame 2: %v", err)
	}
	req2, _ := DecodeRequest(p2)
	if req2.Method != "b" {
		t.Fatalf("second method = %q", req2.Method)
	}

	if _, err := r.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReaderMidFrameCloseIsMalformed(t *testing.T) {
	frame := EncodeRequest("x", []byte("y"))
	truncated := frame[:len(frame)-2] // cut off part of the sentinel
	r := NewReader(bytes.NewReader(truncated))
	if _, err := r.ReadFrame(); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDecodeRequestMissingSplitterIsMalformed(t *testing.T) {
	if _, err := DecodeRequest([]byte("no-splitter-here")); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}
