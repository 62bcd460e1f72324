package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zereker/hnmp"
)

// session prints the events a login example cares about and ignores the rest.
type session struct {
	hnmp.NopHandler
	conn *hnmp.Conn
}

func (s *session) OnLoginResult(status hnmp.LoginStatus, reason string) {
	slog.Info("login result", "status", status, "reason", reason)
	if status != hnmp.LoginSuccess {
		s.conn.Close()
	}
}

func (s *session) OnWorldInit(homeID string, nodes []hnmp.Node) {
	slog.Info("world", "home", homeID, "nodes", len(nodes))
}

func (s *session) OnDisplayText(text string) {
	slog.Info("server says", "text", text)
}

func (s *session) OnSessionTeardown(reason string) {
	slog.Info("session ended", "reason", reason)
}

func (s *session) OnConnectionUnavailable() {
	slog.Warn("no server on 127.0.0.1:27015, start one with: hnmp stub --account neo:zion")
}

func main() {
	h := &session{}
	conn, err := hnmp.NewConn(hnmp.HandlerOption(h))
	if err != nil {
		slog.Error("failed to create connection", "error", err)
		return
	}
	h.conn = conn

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("closing connection...")
		cancel()
		conn.Close()
	}()

	if err := conn.Dial(ctx, "127.0.0.1", 27015); err != nil {
		slog.Error("dial failed", "error", err)
		return
	}

	if err := conn.Login("neo", "zion"); err != nil {
		slog.Error("login failed", "error", err)
	}

	if err := conn.Wait(); err != nil {
		slog.Error("connection error", "error", err)
	}
}
