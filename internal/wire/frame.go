// Package wire implements the chat framing protocol: two length-prefixed
// binary frame layouts sharing a 2-byte signature, little-endian throughout.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Signature prefixes every frame, little-endian on the wire.
const Signature uint16 = 0xFE70 // 65136

// Wire-protocol limits.
const (
	MaxNameLength    = 255   // max UTF-8 bytes for sender and target names
	MaxContentLength = 65535 // max UTF-8 bytes for a single frame body
)

// Context tags the kind of a frame's sender or target.
type Context byte

const (
	ContextUser   Context = 1
	ContextGroup  Context = 2
	ContextSystem Context = 3
)

func (c Context) String() string {
	switch c {
	case ContextUser:
		return "USER"
	case ContextGroup:
		return "GROUP"
	case ContextSystem:
		return "SYSTEM"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(c))
}

// ErrProtocol marks an unrecoverable framing violation: bad signature, bad
// context code, oversized field, or invalid UTF-8. The session must close.
var ErrProtocol = errors.New("protocol violation")

// ClientFrame is one message from client to server.
//
// Layout: SIG(2) TARGET_CTX(1) TLEN(1) TARGET(TLEN) CLEN(2 LE) CONTENT(CLEN).
type ClientFrame struct {
	TargetContext Context
	Target        string
	Content       string
}

// ServerFrame is one message from server to client.
//
// Layout: SIG(2) SENDER_CTX(1) TARGET_CTX(1) SLEN(1) SENDER(SLEN)
// TLEN(1) TARGET(TLEN) CLEN(2 LE) CONTENT(CLEN).
type ServerFrame struct {
	SenderContext Context
	TargetContext Context
	Sender        string
	Target        string
	Content       string
}

// Encode serializes the frame. It fails if the target exceeds MaxNameLength
// bytes, the content exceeds MaxContentLength bytes, or the target context
// is not USER or GROUP.
func (f *ClientFrame) Encode() ([]byte, error) {
	if err := checkTargetContext(f.TargetContext); err != nil {
		return nil, err
	}
	if len(f.Target) > MaxNameLength {
		return nil, fmt.Errorf("%w: target is %d bytes, max %d", ErrProtocol, len(f.Target), MaxNameLength)
	}
	if len(f.Content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content is %d bytes, max %d", ErrProtocol, len(f.Content), MaxContentLength)
	}

	buf := make([]byte, 0, 2+1+1+len(f.Target)+2+len(f.Content))
	buf = binary.LittleEndian.AppendUint16(buf, Signature)
	buf = append(buf, byte(f.TargetContext), byte(len(f.Target)))
	buf = append(buf, f.Target...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.Content)))
	buf = append(buf, f.Content...)
	return buf, nil
}

// Encode serializes the frame, applying the same bounds checks as
// ClientFrame.Encode plus the sender name and sender context.
func (f *ServerFrame) Encode() ([]byte, error) {
	if err := checkSenderContext(f.SenderContext); err != nil {
		return nil, err
	}
	if err := checkTargetContext(f.TargetContext); err != nil {
		return nil, err
	}
	if len(f.Sender) > MaxNameLength {
		return nil, fmt.Errorf("%w: sender is %d bytes, max %d", ErrProtocol, len(f.Sender), MaxNameLength)
	}
	if len(f.Target) > MaxNameLength {
		return nil, fmt.Errorf("%w: target is %d bytes, max %d", ErrProtocol, len(f.Target), MaxNameLength)
	}
	if len(f.Content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content is %d bytes, max %d", ErrProtocol, len(f.Content), MaxContentLength)
	}

	buf := make([]byte, 0, 2+1+1+1+len(f.Sender)+1+len(f.Target)+2+len(f.Content))
	buf = binary.LittleEndian.AppendUint16(buf, Signature)
	buf = append(buf, byte(f.SenderContext), byte(f.TargetContext))
	buf = append(buf, byte(len(f.Sender)))
	buf = append(buf, f.Sender...)
	buf = append(buf, byte(len(f.Target)))
	buf = append(buf, f.Target...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.Content)))
	buf = append(buf, f.Content...)
	return buf, nil
}

// DecodeClientFrame reads one client frame off r, blocking until a full
// frame arrives. Framing violations return ErrProtocol; a peer close
// mid-frame returns ErrClosed.
func DecodeClientFrame(r *Reader) (ClientFrame, error) {
	var f ClientFrame
	if err := readSignature(r); err != nil {
		return f, err
	}
	hdr, err := r.ReadFull(2) // target ctx + target len
	if err != nil {
		return f, err
	}
	f.TargetContext = Context(hdr[0])
	if err := checkTargetContext(f.TargetContext); err != nil {
		return f, err
	}
	if f.Target, err = readString(r, int(hdr[1]), "target"); err != nil {
		return f, err
	}
	if f.Content, err = readContent(r); err != nil {
		return f, err
	}
	return f, nil
}

// DecodeServerFrame reads one server frame off r, blocking until a full
// frame arrives. Error behavior matches DecodeClientFrame.
func DecodeServerFrame(r *Reader) (ServerFrame, error) {
	var f ServerFrame
	if err := readSignature(r); err != nil {
		return f, err
	}
	ctx, err := r.ReadFull(2)
	if err != nil {
		return f, err
	}
	f.SenderContext = Context(ctx[0])
	f.TargetContext = Context(ctx[1])
	if err := checkSenderContext(f.SenderContext); err != nil {
		return f, err
	}
	if err := checkTargetContext(f.TargetContext); err != nil {
		return f, err
	}
	if f.Sender, err = readLenPrefixedString(r, "sender"); err != nil {
		return f, err
	}
	if f.Target, err = readLenPrefixedString(r, "target"); err != nil {
		return f, err
	}
	if f.Content, err = readContent(r); err != nil {
		return f, err
	}
	return f, nil
}

func readSignature(r *Reader) error {
	raw, err := r.ReadFull(2)
	if err != nil {
		return err
	}
	if sig := binary.LittleEndian.Uint16(raw); sig != Signature {
		return fmt.Errorf("%w: bad signature %#04x", ErrProtocol, sig)
	}
	return nil
}

func readLenPrefixedString(r *Reader, field string) (string, error) {
	n, err := r.ReadFull(1)
	if err != nil {
		return "", err
	}
	return readString(r, int(n[0]), field)
}

func readString(r *Reader, n int, field string) (string, error) {
	raw, err := r.ReadFull(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrProtocol, field)
	}
	return string(raw), nil
}

func readContent(r *Reader) (string, error) {
	raw, err := r.ReadFull(2)
	if err != nil {
		return "", err
	}
	return readString(r, int(binary.LittleEndian.Uint16(raw)), "content")
}

func checkSenderContext(c Context) error {
	if c != ContextUser && c != ContextSystem {
		return fmt.Errorf("%w: sender context must be USER or SYSTEM, got %s", ErrProtocol, c)
	}
	return nil
}

func checkTargetContext(c Context) error {
	if c != ContextUser && c != ContextGroup {
		return fmt.Errorf("%w: target context must be USER or GROUP, got %s", ErrProtocol, c)
	}
	return nil
}
