// Package termio multiplexes a live-editable terminal input line against
// asynchronously arriving output. A dedicated goroutine consumes raw
// keystrokes while any number of writer goroutines print above the prompt;
// the prompt line is erased, the text written, and the prompt re-rendered
// with the cursor restored, so the input in progress is never torn.
package termio

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Eboubaker/chat/internal/rwlock"
	"github.com/fatih/color"
)

// KeySource yields one keystroke per call: a single byte, a full UTF-8
// rune, or a whole escape sequence. Putting the terminal into raw mode is
// the caller's concern.
type KeySource interface {
	ReadKey() ([]byte, error)
}

// ErrInterrupted is returned by Input when the user hits Ctrl-C; the
// buffer at interrupt time is available via InterruptedBuffer.
var ErrInterrupted = errors.New("input interrupted")

// ErrRead wraps any other failure inside the key-reading loop.
var ErrRead = errors.New("input read failed")

// Engine owns stdout composition state. Three locks guard it: stdoutLock
// (write side, reentrant) serializes and owns everything rendered,
// bufLock guards the editable buffer, and readMu serializes Input callers.
type Engine struct {
	out  io.Writer
	keys KeySource

	stdoutLock *rwlock.Lock
	bufLock    *rwlock.Lock
	readMu     sync.Mutex

	// Guarded by bufLock.
	buf    []rune
	cursor int

	// Guarded by stdoutLock's write side.
	label       string
	labelColor  *color.Color
	lastWidth   int
	readPending bool

	interruptedMu sync.Mutex
	interrupted   string
}

func New(out io.Writer, keys KeySource) *Engine {
	return &Engine{
		out:        out,
		keys:       keys,
		stdoutLock: rwlock.New(),
		bufLock:    rwlock.New(),
	}
}

// Input renders the prompt and consumes keystrokes until the user submits
// a line. It returns ErrInterrupted on Ctrl-C and an ErrRead-wrapped error
// on any other key source failure. Concurrent callers are serialized.
// history is cycled with the arrow keys, most recent entry first; the
// engine never mutates it.
func (e *Engine) Input(label string, labelColor *color.Color, history []string) (string, error) {
	e.readMu.Lock()
	defer e.readMu.Unlock()

	e.bufLock.AcquireWrite()
	e.buf = e.buf[:0]
	e.cursor = 0
	e.bufLock.ReleaseWrite()

	e.stdoutLock.AcquireWrite()
	e.label = label
	e.labelColor = labelColor
	e.readPending = true
	e.render()
	e.stdoutLock.ReleaseWrite()

	defer func() {
		e.stdoutLock.AcquireWrite()
		e.readPending = false
		e.stdoutLock.ReleaseWrite()
	}()

	histIdx := len(history)
	for {
		key, err := e.keys.ReadKey()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRead, err)
		}
		if len(key) == 0 {
			continue
		}

		if cmd, ok := lookupEscape(key); ok {
			switch cmd {
			case cmdHistoryBack:
				histIdx = e.cycleHistory(history, histIdx, -1)
			case cmdHistoryForward:
				histIdx = e.cycleHistory(history, histIdx, +1)
			case cmdCursorLeft:
				e.moveCursor(-1)
			case cmdCursorRight:
				e.moveCursor(+1)
			case cmdDeleteForward:
				e.deleteAt(0)
			}
			e.redraw()
			continue
		}
		if key[0] == escByte || key[0] == nulByte {
			e.Write(fmt.Sprintf("unrecognized escape sequence %q", key))
			continue
		}

		b := key[0]
		switch {
		case b == '\r' || b == '\n':
			line := e.takeBuffer()
			e.finishLine()
			return line, nil
		case b == 0x03: // Ctrl-C
			line := e.takeBuffer()
			e.interruptedMu.Lock()
			e.interrupted = line
			e.interruptedMu.Unlock()
			e.finishLine()
			return "", ErrInterrupted
		case b == 0x08 || b == 0x7F: // backspace
			e.deleteAt(-1)
			e.redraw()
		case b <= 31:
			// Other control characters are discarded.
		default:
			r, _ := utf8.DecodeRune(key)
			e.insertRune(r)
			e.redraw()
		}
	}
}

// InterruptedBuffer returns the buffer captured by the last Ctrl-C.
func (e *Engine) InterruptedBuffer() string {
	e.interruptedMu.Lock()
	defer e.interruptedMu.Unlock()
	return e.interrupted
}

// Write prints txt on its own line. While a read is in progress the prompt
// is erased first and re-rendered after, cursor restored; otherwise the
// text goes straight out. Output is flushed before returning.
func (e *Engine) Write(txt string) {
	e.stdoutLock.AcquireWrite()
	defer e.stdoutLock.ReleaseWrite()

	if e.readPending {
		e.eraseLine()
		io.WriteString(e.out, txt+"\r\n")
		e.render()
		return
	}
	io.WriteString(e.out, txt+"\r\n")
	e.lastWidth = 0
	e.flush()
}

// UpdateInputLabel swaps the prompt label, re-rendering if a read is live.
func (e *Engine) UpdateInputLabel(label string) {
	e.stdoutLock.AcquireWrite()
	defer e.stdoutLock.ReleaseWrite()
	e.label = label
	if e.readPending {
		e.eraseLine()
		e.render()
	}
}

// UpdateInputLabelColor swaps the prompt color, re-rendering if a read is
// live. A nil color renders the label plain.
func (e *Engine) UpdateInputLabelColor(c *color.Color) {
	e.stdoutLock.AcquireWrite()
	defer e.stdoutLock.ReleaseWrite()
	e.labelColor = c
	if e.readPending {
		e.eraseLine()
		e.render()
	}
}

// UpdateInputBuffer replaces the editable buffer, cursor at the end.
func (e *Engine) UpdateInputBuffer(s string) {
	e.bufLock.AcquireWrite()
	e.buf = append(e.buf[:0], []rune(s)...)
	e.cursor = len(e.buf)
	e.bufLock.ReleaseWrite()

	e.stdoutLock.AcquireWrite()
	defer e.stdoutLock.ReleaseWrite()
	if e.readPending {
		e.eraseLine()
		e.render()
	}
}

// takeBuffer snapshots and clears the buffer.
func (e *Engine) takeBuffer() string {
	e.bufLock.AcquireWrite()
	defer e.bufLock.ReleaseWrite()
	line := string(e.buf)
	e.buf = e.buf[:0]
	e.cursor = 0
	return line
}

func (e *Engine) insertRune(r rune) {
	e.bufLock.AcquireWrite()
	defer e.bufLock.ReleaseWrite()
	e.buf = append(e.buf, 0)
	copy(e.buf[e.cursor+1:], e.buf[e.cursor:])
	e.buf[e.cursor] = r
	e.cursor++
}

// deleteAt removes the rune at cursor+offset: -1 is backspace, 0 is
// delete-forward.
func (e *Engine) deleteAt(offset int) {
	e.bufLock.AcquireWrite()
	defer e.bufLock.ReleaseWrite()
	i := e.cursor + offset
	if i < 0 || i >= len(e.buf) {
		return
	}
	e.buf = append(e.buf[:i], e.buf[i+1:]...)
	if offset < 0 {
		e.cursor--
	}
}

func (e *Engine) moveCursor(delta int) {
	e.bufLock.AcquireWrite()
	defer e.bufLock.ReleaseWrite()
	e.cursor += delta
	if e.cursor < 0 {
		e.cursor = 0
	}
	if e.cursor > len(e.buf) {
		e.cursor = len(e.buf)
	}
}

// cycleHistory steps the tail index and replaces the buffer with the
// entry it lands on, clamping to [0, len(history)-1].
func (e *Engine) cycleHistory(history []string, idx, delta int) int {
	if len(history) == 0 {
		return idx
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx > len(history)-1 {
		idx = len(history) - 1
	}
	e.bufLock.AcquireWrite()
	e.buf = append(e.buf[:0], []rune(history[idx])...)
	e.cursor = len(e.buf)
	e.bufLock.ReleaseWrite()
	return idx
}

// finishLine moves output past the prompt after a submit or interrupt.
// The terminal runs raw, so line breaks are written as CR LF explicitly.
func (e *Engine) finishLine() {
	e.stdoutLock.AcquireWrite()
	defer e.stdoutLock.ReleaseWrite()
	io.WriteString(e.out, "\r\n")
	e.lastWidth = 0
	e.flush()
}

// redraw re-renders the prompt line under the stdout lock.
func (e *Engine) redraw() {
	e.stdoutLock.AcquireWrite()
	defer e.stdoutLock.ReleaseWrite()
	e.eraseLine()
	e.render()
}

// eraseLine blanks the previously rendered composition. stdoutLock held.
func (e *Engine) eraseLine() {
	io.WriteString(e.out, "\r"+strings.Repeat(" ", e.lastWidth)+"\r")
}

// render writes label+buffer and parks the cursor at its logical offset.
// stdoutLock held.
func (e *Engine) render() {
	label := e.label
	if e.labelColor != nil {
		label = e.labelColor.Sprint(label)
	}
	io.WriteString(e.out, label)

	e.bufLock.AcquireRead()
	line := string(e.buf)
	back := len(e.buf) - e.cursor
	width := utf8.RuneCountInString(e.label) + len(e.buf)
	e.bufLock.ReleaseRead()

	io.WriteString(e.out, line)
	if back > 0 {
		io.WriteString(e.out, strings.Repeat("\b", back))
	}
	e.lastWidth = width
	e.flush()
}

func (e *Engine) flush() {
	if f, ok := e.out.(interface{ Flush() error }); ok {
		f.Flush()
	}
}
