package radio

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeMessage(t *testing.T) {
	msg := EncodeMessage(MsgNodeFrame, []byte{5, 0x26, 0x02})
	want := []byte{0x00, 0x05, 0x00, 0x10, 5, 0x26, 0x02}
	if !bytes.Equal(msg, want) {
		t.Errorf("EncodeMessage() = % X, want % X", msg, want)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	payload := []byte{9, 0x6C, 0x02, 5, 0xFF, 0}
	msg := EncodeMessage(MsgNodeFrame, payload)

	msgType, got, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msgType != MsgNodeFrame {
		t.Errorf("type = %#04x, want %#04x", msgType, MsgNodeFrame)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % X, want % X", got, payload)
	}
}

func TestParseMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
	}{
		{"too short", []byte{0x00, 0x02, 0x00}},
		{"size mismatch", []byte{0x00, 0x09, 0x00, 0x10, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseMessage(tt.msg); !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("ParseMessage() error = %v, want ErrInvalidFrame", err)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{NodeID: 7, Payload: []byte{0x26, 0x03, 50}}
	got, err := ParseFrame(f.Encode())
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if got.NodeID != 7 || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("ParseFrame() = %+v", got)
	}
}

func TestParseFrameTooShort(t *testing.T) {
	if _, err := ParseFrame([]byte{7, 0x26}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("ParseFrame() error = %v, want ErrInvalidFrame", err)
	}
}
