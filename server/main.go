// The chat server: accepts TCP connections, walks each one through
// username selection, then dispatches its commands against the shared
// user/group graph. An optional HTTP port exposes status and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/Eboubaker/chat/internal/cliargs"
	"github.com/Eboubaker/chat/internal/core"
	"github.com/Eboubaker/chat/internal/fanout"
	"github.com/Eboubaker/chat/internal/metrics"
	"github.com/Eboubaker/chat/internal/ops"
)

func main() {
	args := cliargs.Parse(os.Args[1:])
	host := cliargs.Get(args, "host", defaultHost)
	port, err := strconv.Atoi(cliargs.Get(args, "port", defaultPort))
	if err != nil {
		fmt.Fprintln(os.Stderr, "port parse failed, expected integer")
		os.Exit(2)
	}
	opsPort := args["ops_port"]

	level := slog.LevelInfo
	if _, ok := args["debug"]; ok {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// /users decorations are rendered here and travel over the wire, so
	// color output must not depend on the server's own tty.
	color.NoColor = false

	pool := fanout.New(senderWorkers)
	pool.Start()
	defer pool.Stop()
	state := core.NewState(pool)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("bind failed", "addr", addr, "err", err)
		os.Exit(1)
	}

	fmt.Printf("chat server is listening in %s:%d press Ctrl+C to stop\n", host, port)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		return acceptLoop(ctx, ln, state)
	})
	if opsPort != "" {
		g.Go(func() error {
			return ops.New(state).Run(ctx, net.JoinHostPort(host, opsPort))
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func acceptLoop(ctx context.Context, ln net.Listener, state *core.State) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !admit(state, conn) {
			continue
		}
		slog.Info("accepted", "remote", conn.RemoteAddr())
		go runSession(state, conn)
	}
}

// admit enforces the user cap under the write hold so two racing accepts
// cannot both slip under it. A rejected connection gets the raw
// SERVER_FULL bytes and an immediate close.
func admit(state *core.State, conn net.Conn) bool {
	state.Lock.AcquireWrite()
	defer state.Lock.ReleaseWrite()

	if state.UserCount() > maxUsers {
		metrics.RejectedConns.Inc()
		slog.Warn("server full, rejecting", "remote", conn.RemoteAddr())
		if _, err := conn.Write([]byte(serverFullReply)); err != nil {
			slog.Debug("reject write", "err", err)
		}
		conn.Close()
		return false
	}
	return true
}
