// The chat client: a terminal front end that multiplexes a live-editable
// input line against messages arriving from the server.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/Eboubaker/chat/internal/cliargs"
	"github.com/Eboubaker/chat/internal/termio"
	"github.com/Eboubaker/chat/internal/wire"
)

const (
	defaultHost = "localhost"
	defaultPort = "50600"
)

func main() {
	args := cliargs.Parse(os.Args[1:])
	host := cliargs.Get(args, "host", defaultHost)
	port, err := strconv.Atoi(cliargs.Get(args, "port", defaultPort))
	if err != nil {
		fmt.Fprintln(os.Stderr, "port parse failed, expected integer")
		os.Exit(2)
	}

	// slog output would fight the terminal engine for the screen.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Printf("Server not up at %s cause: %v\n", addr, err)
		return
	}
	defer conn.Close()

	// Prompt and message colors are part of the interface, tty or not.
	color.NoColor = false

	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		old, err := term.MakeRaw(stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "raw mode: %v\n", err)
			os.Exit(1)
		}
		defer term.Restore(stdin, old)
	}

	engine := termio.New(os.Stdout, termio.NewKeys(os.Stdin))
	a := newApp(engine, conn)
	engine.Write("connected to " + addr)

	go a.receiveLoop(conn)
	go a.inputLoop(engine)

	// The loops are abandoned on quit: either may be parked in a blocking
	// read that only process exit can unwind.
	<-a.Quit()
	fmt.Print("\r\n")
}

// receiveLoop decodes server frames until the connection drops.
func (a *app) receiveLoop(conn io.Reader) {
	defer a.close()
	r := wire.NewReader(conn)
	for {
		f, err := wire.DecodeServerFrame(r)
		if err != nil {
			a.writeError(fmt.Sprintf("fatal: server connection dropped, cause: %v", err))
			return
		}
		a.handleServerFrame(f)
	}
}

// inputLoop reads submitted lines and feeds them to the dispatcher.
// Three Ctrl-C presses with no successful submission in between exit the
// program; a single Ctrl-C on a non-empty buffer just clears it.
func (a *app) inputLoop(lines lineSource) {
	defer a.close()
	interrupts := 0
	lastWasInterrupt := false
	for {
		select {
		case <-a.quit:
			return
		default:
		}

		label, labelColor := a.prompt()
		line, err := lines.Input(label, labelColor, a.snapshotHistory())
		switch {
		case errors.Is(err, termio.ErrInterrupted):
			if interrupts == 2 {
				a.writeProgram("exiting chat program")
				return
			}
			if lastWasInterrupt || lines.InterruptedBuffer() == "" {
				a.writeProgram(fmt.Sprintf("type /exit to quit or hit Ctrl+C %d more times", 2-interrupts))
				interrupts++
			} else {
				lastWasInterrupt = true
			}
			continue
		case err != nil:
			a.writeError("input-error:" + err.Error())
			if errors.Is(err, io.EOF) {
				return
			}
			continue
		}

		line = strings.TrimSpace(line)
		a.recordHistory(line)
		lastWasInterrupt = false
		interrupts = 0
		if !a.handleInput(line) {
			return
		}
	}
}
