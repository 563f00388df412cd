package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/Eboubaker/chat/internal/wire"
)

const maxHistory = 1000

const localHelpText = `chat commands
/w <user_name>          whisper user
/switch <group_name>    switch to another group
/color                  change color of this group
/quit or /exit          exit
/help                   show commands`

// screen is the slice of the terminal engine the dispatcher drives.
type screen interface {
	Write(string)
	UpdateInputLabel(string)
	UpdateInputLabelColor(*color.Color)
	UpdateInputBuffer(string)
}

// lineSource produces submitted input lines; the terminal engine is the
// real implementation.
type lineSource interface {
	Input(label string, c *color.Color, history []string) (string, error)
	InterruptedBuffer() string
}

var (
	systemColor  = color.New(color.FgCyan)
	whisperColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	defaultColor = color.New(color.FgWhite)
)

// palette is the /color allowlist. cyan is reserved for system output.
var palette = map[string]*color.Color{
	"grey":    color.New(color.FgHiBlack),
	"red":     color.New(color.FgRed),
	"green":   color.New(color.FgGreen),
	"yellow":  color.New(color.FgYellow),
	"blue":    color.New(color.FgBlue),
	"magenta": color.New(color.FgMagenta),
	"white":   color.New(color.FgWhite),
}

func paletteNames() string {
	names := make([]string, 0, len(palette))
	for n := range palette {
		names = append(names, n)
	}
	// stable order for the error message
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	return strings.Join(names, ",")
}

// app is the client dispatcher: it translates server frames into display
// updates and input lines into outbound frames. mu orders frame handling
// against input handling so prompt state never tears.
type app struct {
	screen screen
	conn   io.Writer

	mu              sync.Mutex
	name            string
	target          string
	targetContext   wire.Context
	pickingUsername bool
	label           string
	labelColor      *color.Color
	targetColors    map[string]*color.Color
	history         []string
	quit            chan struct{}
	quitOnce        sync.Once
}

func newApp(scr screen, conn io.Writer) *app {
	return &app{
		screen:        scr,
		conn:          conn,
		name:          "null",
		target:        "global",
		targetContext: wire.ContextGroup,
		label:         "global: ",
		labelColor:    defaultColor,
		targetColors:  map[string]*color.Color{"system": systemColor},
		quit:          make(chan struct{}),
	}
}

func (a *app) Quit() <-chan struct{} { return a.quit }

func (a *app) close() { a.quitOnce.Do(func() { close(a.quit) }) }

func (a *app) targetColor(name string) *color.Color {
	if c, ok := a.targetColors[name]; ok {
		return c
	}
	return defaultColor
}

// setPrompt updates both the tracked prompt state and the live display.
func (a *app) setPrompt(label string, c *color.Color) {
	a.label = label
	a.labelColor = c
	a.screen.UpdateInputLabel(label)
	a.screen.UpdateInputLabelColor(c)
}

func (a *app) writeError(txt string) {
	a.screen.Write(errorColor.Sprint(txt))
}

func (a *app) writeProgram(txt string) {
	a.screen.Write(systemColor.Sprint("program: " + txt))
}

// writeMessage renders one chat line: optional [group] tag, optional
// sender prefix, then the content.
func (a *app) writeMessage(content, group, sender string, isSystem, isWhisper bool) {
	line := ""
	if group != "" {
		tag := "[" + group + "] "
		if isSystem || isWhisper {
			line += tag
		} else {
			line += a.targetColor(group).Sprint(tag)
		}
	}
	if sender != "" {
		if isWhisper {
			line += sender + "'s whispers: "
		} else {
			line += sender + ": "
		}
	}
	line += content
	if isWhisper {
		line = whisperColor.Sprint(line)
	}
	if isSystem {
		line = systemColor.Sprint(line)
	}
	a.screen.Write(line)
}

// handleServerFrame dispatches one decoded frame: protocol sentinels
// update prompt state, everything else is rendered.
func (a *app) handleServerFrame(f wire.ServerFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if f.SenderContext == wire.ContextSystem {
		if f.TargetContext == wire.ContextUser {
			switch {
			case f.Content == "/req username":
				a.pickingUsername = true
				a.setPrompt("username: ", systemColor)
			case strings.HasPrefix(f.Content, "/set username "):
				a.name = f.Content[len("/set username "):]
				a.pickingUsername = false
				a.target = "global"
				a.targetContext = wire.ContextGroup
				a.setPrompt("global: ", a.targetColor("global"))
			case strings.HasPrefix(f.Content, "/switch "):
				a.target = f.Content[len("/switch "):]
				a.targetContext = wire.ContextGroup
				a.setPrompt(a.target+": ", a.targetColor(a.target))
			case strings.HasPrefix(f.Content, "You're whispering to"):
				a.screen.Write(whisperColor.Sprint(f.Content))
			default:
				a.writeMessage(f.Content, "", f.Sender, true, false)
			}
			return
		}
		a.writeMessage(f.Content, f.Target, f.Sender, true, false)
		return
	}

	if f.TargetContext == wire.ContextUser && f.Target == a.name {
		a.writeMessage(f.Content, "", f.Sender, false, true)
		return
	}
	if f.TargetContext == wire.ContextGroup {
		a.writeMessage(f.Content, f.Target, f.Sender, false, false)
		return
	}
	a.writeError(fmt.Sprintf("received unhandled message from %s to %s", f.Sender, f.Target))
}

// handleInput processes one submitted line: local commands mutate client
// state, everything else is framed and sent. Returns false when the
// program should exit.
func (a *app) handleInput(line string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case strings.HasPrefix(line, "/switch ") && strings.TrimSpace(line[len("/switch "):]) != "":
		a.target = strings.TrimSpace(line[len("/switch "):])
		a.targetContext = wire.ContextGroup
		a.setPrompt(a.target+": ", a.targetColor(a.target))
		return true

	case strings.HasPrefix(line, "/color ") && strings.TrimSpace(line[len("/color "):]) != "":
		name := strings.TrimSpace(line[len("/color "):])
		c, ok := palette[name]
		if !ok {
			a.writeError("client: allowed colors are " + paletteNames())
			return true
		}
		a.targetColors[a.target] = c
		a.labelColor = c
		a.screen.UpdateInputLabelColor(c)
		return true

	case line == "/exit" || line == "/quit":
		a.writeProgram("exiting chat program")
		a.close()
		return false

	case strings.HasPrefix(line, "/w ") && strings.TrimSpace(line[len("/w "):]) != "":
		rest := strings.TrimSpace(line[len("/w "):])
		user, msg, found := strings.Cut(rest, " ")
		msg = strings.TrimSpace(msg)
		if !found || msg == "" {
			a.writeError("must provide user and message")
			return true
		}
		a.sendFrame(wire.ContextUser, user, msg)
		// Prefill the next prompt so the whisper conversation flows.
		a.screen.UpdateInputBuffer("/w " + user + " ")
		return true

	case line == "/help":
		a.writeProgram(localHelpText)
		// The server appends its own command list.
	}

	a.sendFrame(a.targetContext, a.target, line)
	return true
}

func (a *app) sendFrame(ctx wire.Context, target, content string) {
	data, err := (&wire.ClientFrame{TargetContext: ctx, Target: target, Content: content}).Encode()
	if err != nil {
		a.writeError("error: " + err.Error())
		return
	}
	if _, err := a.conn.Write(data); err != nil {
		a.writeError("error: " + err.Error())
	}
}

// prompt returns the current label and color for the next Input call.
func (a *app) prompt() (string, *color.Color) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.label, a.labelColor
}

func (a *app) recordHistory(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, line)
	if len(a.history) > maxHistory {
		a.history = a.history[1:]
	}
}

func (a *app) snapshotHistory() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.history...)
}
