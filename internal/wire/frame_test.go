package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestSplitFrame(t *testing.T) {
	topic, payload, err := SplitFrame([]byte(`status_abcd {"timestamp":"t1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if topic != "status_abcd" {
		t.Errorf("topic = %q", topic)
	}
	if string(payload) != `{"timestamp":"t1"}` {
		t.Errorf("payload = %q", payload)
	}
}

func TestSplitFramePayloadKeepsSpaces(t *testing.T) {
	// Only the first space separates; the payload passes through raw.
	topic, payload, err := SplitFrame([]byte("data_abcd a b c"))
	if err != nil {
		t.Fatal(err)
	}
	if topic != "data_abcd" || string(payload) != "a b c" {
		t.Errorf("got topic %q payload %q", topic, payload)
	}
}

func TestSplitFrameNoSeparator(t *testing.T) {
	_, _, err := SplitFrame([]byte("noseparator"))
	if !errors.Is(err, ErrNoSeparator) {
		t.Fatalf("expected ErrNoSeparator, got %v", err)
	}
}

func TestJoinFrameInverse(t *testing.T) {
	payload := []byte{0x00, 0x20, 0xff, 0x01}
	frame := JoinFrame("data_x", payload)
	topic, got, err := SplitFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	if topic != "data_x" || !bytes.Equal(got, payload) {
		t.Errorf("round trip lost data: topic %q payload %v", topic, got)
	}
}

func TestParseEvent(t *testing.T) {
	raw := []byte(`{"type":"event","timestamp":"2020-01-02T03:04:05Z","event":"HV on"}`)
	rec, err := ParseEvent(raw)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != "event" || rec.Timestamp != "2020-01-02T03:04:05Z" {
		t.Errorf("unexpected record: %+v", rec)
	}

	// Re-marshalling reproduces the module's original body.
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, raw) {
		t.Errorf("marshal = %s, want %s", out, raw)
	}
}

func TestParseEventMalformed(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"type":`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestCommandEncoderMsgIDs(t *testing.T) {
	var enc CommandEncoder
	for want := uint64(0); want < 3; want++ {
		data, err := enc.Encode("start", map[string]int{"channel": 1})
		if err != nil {
			t.Fatal(err)
		}
		env, err := DecodeCommand(data)
		if err != nil {
			t.Fatal(err)
		}
		if env.Command != "start" {
			t.Errorf("command = %q", env.Command)
		}
		if env.MsgID != want {
			t.Errorf("msg_id = %d, want %d", env.MsgID, want)
		}
		if env.Timestamp == "" {
			t.Error("timestamp missing")
		}
	}
}

func TestEncodersAreIndependent(t *testing.T) {
	var a, b CommandEncoder
	a.Encode("x", nil)
	data, _ := b.Encode("y", nil)
	env, err := DecodeCommand(data)
	if err != nil {
		t.Fatal(err)
	}
	if env.MsgID != 0 {
		t.Errorf("new encoder should start at 0, got %d", env.MsgID)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(EventStatus, []byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	var got Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Event != EventStatus {
		t.Errorf("event = %q", got.Event)
	}
	var payload []byte
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if string(payload) != "abc" {
		t.Errorf("payload = %q", payload)
	}
}
