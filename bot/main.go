// A demo chat bot: connects, picks a random username, and paces canned
// messages into the global group. Useful for exercising a server by hand.
package main

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/Eboubaker/chat/internal/cliargs"
	"github.com/Eboubaker/chat/internal/wire"
)

var usernames = []string{
	"fabio", "marco", "lena", "kira", "jonas", "mia", "ravi", "tessa",
}

var messages = []string{
	"Hi there, I'm Fabio and you?",
	"Nice to meet you",
	"How are you?",
	"Not too bad, thanks",
	"What do you do?",
	"That's awesome",
	"I think you're a nice person",
	"Why do you think that?",
	"Can you explain?",
	"Anyway I've gotta go now",
	"It was a pleasure chat with you",
	"whats wrong ?",
	"not too good here",
	"Bye",
	":)",
	"gone?",
	"great",
}

func main() {
	args := cliargs.Parse(os.Args[1:])
	host := cliargs.Get(args, "host", "localhost")
	port, err := strconv.Atoi(cliargs.Get(args, "port", "50600"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "port parse failed, expected integer")
		os.Exit(2)
	}
	pacing, err := strconv.ParseFloat(cliargs.Get(args, "timeout", "1.2"), 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timeout parse failed, expected number")
		os.Exit(2)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Printf("Server not up at %s cause: %v\n", addr, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the socket buffer never fills up.
	go func() {
		r := wire.NewReader(conn)
		for {
			if _, err := wire.DecodeServerFrame(r); err != nil {
				return
			}
		}
	}()

	// The suffix keeps several bots from fighting over one name.
	name := fmt.Sprintf("%s-%d", usernames[rand.Intn(len(usernames))], rand.Intn(9999)+1)
	if err := send(conn, name); err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		os.Exit(1)
	}

	for {
		time.Sleep(time.Duration(pacing * float64(time.Second)))
		if err := send(conn, messages[rand.Intn(len(messages))]); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}
	}
}

func send(conn net.Conn, content string) error {
	data, err := (&wire.ClientFrame{
		TargetContext: wire.ContextGroup,
		Target:        "global",
		Content:       content,
	}).Encode()
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}
