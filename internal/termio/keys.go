package termio

import (
	"bufio"
	"io"
)

const (
	escByte = 0x1B
	nulByte = 0x00
)

type command int

const (
	cmdHistoryBack command = iota
	cmdHistoryForward
	cmdCursorLeft
	cmdCursorRight
	cmdDeleteForward
)

// ANSI CSI sequences as emitted by raw-mode terminals.
var ansiEscapes = map[string]command{
	"\x1b[A":  cmdHistoryBack,
	"\x1b[B":  cmdHistoryForward,
	"\x1b[D":  cmdCursorLeft,
	"\x1b[C":  cmdCursorRight,
	"\x1b[3~": cmdDeleteForward,
}

// NUL-prefixed scan codes from legacy console input.
var legacyEscapes = map[string]command{
	"\x00H": cmdHistoryBack,
	"\x00P": cmdHistoryForward,
	"\x00K": cmdCursorLeft,
	"\x00M": cmdCursorRight,
	"\x00S": cmdDeleteForward,
}

func lookupEscape(key []byte) (command, bool) {
	if cmd, ok := ansiEscapes[string(key)]; ok {
		return cmd, true
	}
	cmd, ok := legacyEscapes[string(key)]
	return cmd, ok
}

// Keys reads keystrokes off a raw-mode byte stream, grouping multi-byte
// escape sequences and UTF-8 runes into single keys.
type Keys struct {
	r *bufio.Reader
}

func NewKeys(r io.Reader) *Keys {
	return &Keys{r: bufio.NewReader(r)}
}

// ReadKey returns the next keystroke. CSI sequences are accumulated up to
// their final byte (0x40..0x7E); a lone ESC followed by a non-'[' byte is
// returned as that two-byte pair. A read error mid-sequence yields the
// bytes gathered so far; the error surfaces on the next call.
func (k *Keys) ReadKey() ([]byte, error) {
	b, err := k.r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch b {
	case escByte:
		seq := []byte{b}
		nxt, err := k.r.ReadByte()
		if err != nil {
			return seq, nil
		}
		seq = append(seq, nxt)
		if nxt != '[' {
			return seq, nil
		}
		for {
			c, err := k.r.ReadByte()
			if err != nil {
				return seq, nil
			}
			seq = append(seq, c)
			if c >= 0x40 && c <= 0x7E {
				return seq, nil
			}
		}
	case nulByte:
		nxt, err := k.r.ReadByte()
		if err != nil {
			return []byte{b}, nil
		}
		return []byte{b, nxt}, nil
	}

	if b < 0x80 {
		return []byte{b}, nil
	}

	// UTF-8 leading byte: pull the continuation bytes.
	n := 1
	switch {
	case b&0xF8 == 0xF0:
		n = 4
	case b&0xF0 == 0xE0:
		n = 3
	case b&0xE0 == 0xC0:
		n = 2
	}
	seq := []byte{b}
	for len(seq) < n {
		c, err := k.r.ReadByte()
		if err != nil {
			return seq, nil
		}
		seq = append(seq, c)
	}
	return seq, nil
}
