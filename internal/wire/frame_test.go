package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestClientFrameRoundTrip(t *testing.T) {
	cases := []ClientFrame{
		{TargetContext: ContextGroup, Target: "global", Content: "hello there"},
		{TargetContext: ContextUser, Target: "bob", Content: ""},
		{TargetContext: ContextGroup, Target: "room1", Content: "héllo wörld 🙂"},
		{TargetContext: ContextUser, Target: strings.Repeat("a", MaxNameLength), Content: strings.Repeat("x", MaxContentLength)},
	}
	for _, want := range cases {
		raw, err := want.Encode()
		if err != nil {
			t.Fatalf("encode %+v: %v", want, err)
		}
		got, err := DecodeClientFrame(NewReader(bytes.NewReader(raw)))
		if err != nil {
			t.Fatalf("decode %+v: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestServerFrameRoundTrip(t *testing.T) {
	cases := []ServerFrame{
		{SenderContext: ContextSystem, TargetContext: ContextUser, Sender: "system", Target: "alice", Content: "/req username"},
		{SenderContext: ContextUser, TargetContext: ContextGroup, Sender: "alice", Target: "global", Content: "hi all"},
		{SenderContext: ContextUser, TargetContext: ContextUser, Sender: "bob", Target: "alice", Content: "psst"},
	}
	for _, want := range cases {
		raw, err := want.Encode()
		if err != nil {
			t.Fatalf("encode %+v: %v", want, err)
		}
		got, err := DecodeServerFrame(NewReader(bytes.NewReader(raw)))
		if err != nil {
			t.Fatalf("decode %+v: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestDecodeBadSignature(t *testing.T) {
	f := ClientFrame{TargetContext: ContextGroup, Target: "global", Content: "hi"}
	raw, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{0, 1} {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0xFF
		if _, err := DecodeClientFrame(NewReader(bytes.NewReader(tampered))); !errors.Is(err, ErrProtocol) {
			t.Errorf("tampered signature byte %d: got %v, want ErrProtocol", i, err)
		}
	}
}

func TestDecodeBadContexts(t *testing.T) {
	cf := ClientFrame{TargetContext: ContextGroup, Target: "g", Content: "x"}
	raw, _ := cf.Encode()
	for _, bad := range []byte{0, 3, 4, 255} {
		tampered := append([]byte(nil), raw...)
		tampered[2] = bad // target context lives after the 2-byte signature
		if _, err := DecodeClientFrame(NewReader(bytes.NewReader(tampered))); !errors.Is(err, ErrProtocol) {
			t.Errorf("target context %d: got %v, want ErrProtocol", bad, err)
		}
	}

	sf := ServerFrame{SenderContext: ContextSystem, TargetContext: ContextUser, Sender: "system", Target: "a", Content: "x"}
	raw, _ = sf.Encode()
	for _, bad := range []byte{0, 2, 4} { // GROUP is not a valid sender
		tampered := append([]byte(nil), raw...)
		tampered[2] = bad
		if _, err := DecodeServerFrame(NewReader(bytes.NewReader(tampered))); !errors.Is(err, ErrProtocol) {
			t.Errorf("sender context %d: got %v, want ErrProtocol", bad, err)
		}
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	f := ClientFrame{TargetContext: ContextUser, Target: "ab", Content: "cd"}
	raw, _ := f.Encode()
	tampered := append([]byte(nil), raw...)
	tampered[4] = 0xFF // first target byte
	if _, err := DecodeClientFrame(NewReader(bytes.NewReader(tampered))); !errors.Is(err, ErrProtocol) {
		t.Errorf("invalid UTF-8 target: got %v, want ErrProtocol", err)
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	f := ServerFrame{SenderContext: ContextUser, TargetContext: ContextGroup, Sender: "alice", Target: "global", Content: "some content"}
	raw, _ := f.Encode()
	for _, n := range []int{0, 1, 3, 7, len(raw) - 1} {
		_, err := DecodeServerFrame(NewReader(bytes.NewReader(raw[:n])))
		if !errors.Is(err, ErrClosed) {
			t.Errorf("truncated at %d bytes: got %v, want ErrClosed", n, err)
		}
	}
}

func TestEncodeBounds(t *testing.T) {
	long := strings.Repeat("n", MaxNameLength+1)
	if _, err := (&ClientFrame{TargetContext: ContextUser, Target: long}).Encode(); !errors.Is(err, ErrProtocol) {
		t.Errorf("oversized target: got %v, want ErrProtocol", err)
	}
	big := strings.Repeat("c", MaxContentLength+1)
	if _, err := (&ClientFrame{TargetContext: ContextGroup, Target: "g", Content: big}).Encode(); !errors.Is(err, ErrProtocol) {
		t.Errorf("oversized content: got %v, want ErrProtocol", err)
	}
	if _, err := (&ServerFrame{SenderContext: ContextGroup, TargetContext: ContextUser, Sender: "s", Target: "t"}).Encode(); !errors.Is(err, ErrProtocol) {
		t.Errorf("GROUP sender context: got %v, want ErrProtocol", err)
	}
}

func TestTwoFramesBackToBack(t *testing.T) {
	a := ClientFrame{TargetContext: ContextGroup, Target: "global", Content: "first"}
	b := ClientFrame{TargetContext: ContextUser, Target: "bob", Content: "second"}
	rawA, _ := a.Encode()
	rawB, _ := b.Encode()
	r := NewReader(bytes.NewReader(append(rawA, rawB...)))

	got, err := DecodeClientFrame(r)
	if err != nil || got != a {
		t.Fatalf("first frame: got %+v, %v", got, err)
	}
	got, err = DecodeClientFrame(r)
	if err != nil || got != b {
		t.Fatalf("second frame: got %+v, %v", got, err)
	}
}

func TestContextString(t *testing.T) {
	if ContextUser.String() != "USER" || ContextGroup.String() != "GROUP" || ContextSystem.String() != "SYSTEM" {
		t.Error("context names wrong")
	}
	if Context(9).String() != "UNKNOWN(9)" {
		t.Errorf("unknown context: %s", Context(9))
	}
}
