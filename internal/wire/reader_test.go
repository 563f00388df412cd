package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// drip returns one byte per Read call, forcing the reader to accumulate.
type drip struct {
	data []byte
}

func (d *drip) Read(p []byte) (int, error) {
	if len(d.data) == 0 {
		return 0, io.EOF
	}
	p[0] = d.data[0]
	d.data = d.data[1:]
	return 1, nil
}

func TestReadFullAcrossShortReads(t *testing.T) {
	r := NewReader(&drip{data: []byte("hello world")})
	got, err := r.ReadFull(5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q", got)
	}
	got, err = r.ReadFull(6)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != " world" {
		t.Errorf("got %q", got)
	}
}

func TestReadFullPeerClose(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("abc")))
	if _, err := r.ReadFull(4); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestReadFullZero(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	got, err := r.ReadFull(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bytes", len(got))
	}
}

func TestReadFullEarlierSliceSurvivesRefill(t *testing.T) {
	r := NewReader(&drip{data: []byte("abcdef")})
	first, err := r.ReadFull(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadFull(3); err != nil {
		t.Fatal(err)
	}
	if string(first) != "abc" {
		t.Errorf("first slice corrupted: %q", first)
	}
}
