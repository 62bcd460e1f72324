package stubserver

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/pkg/errors"

	"github.com/Zereker/hnmp"
)

// Account is a login the scripted server accepts.
type Account struct {
	Password  string
	Banned    bool
	BanReason string
}

// Script answers logins from a fixed account table. After a successful
// login it sends the world (START), the message of the day (MESSG) and,
// if KickReason is set, ends the session with DSCON.
type Script struct {
	Accounts   map[string]Account
	Home       string
	Nodes      []hnmp.Node
	Motd       string
	KickReason string
	Logger     *slog.Logger
}

var _ Handler = (*Script)(nil)

// Handle implements Handler.
func (s *Script) Handle(ctx context.Context, conn *net.TCPConn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger := s.logger().With("remote_addr", conn.RemoteAddr())
	codec := hnmp.JSONCodec{}
	chunk := make([]byte, 4096)
	var pending []byte

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			msgs, leftover, decodeErr := codec.Decode(pending)
			pending = leftover

			for _, m := range msgs {
				done, err := s.reply(conn, codec, m)
				if err != nil {
					logger.Debug("write failed", "error", err)
					return
				}
				if done {
					return
				}
			}

			if decodeErr != nil {
				logger.Warn("bad frame from client", "error", decodeErr)
				_ = send(conn, codec, hnmp.TypeDisconnect, "protocol error")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("read failed", "error", err)
			}
			return
		}
	}
}

// reply answers one client message. done reports that the session is over.
func (s *Script) reply(w io.Writer, codec hnmp.Codec, m hnmp.Message) (done bool, err error) {
	if m.Type != hnmp.TypeLogin {
		return false, nil
	}
	if len(m.Data) != 2 {
		return false, send(w, codec, hnmp.TypeLoginResult, "1")
	}

	acct, ok := s.Accounts[m.Data[0]]
	switch {
	case !ok || acct.Password != m.Data[1]:
		return false, send(w, codec, hnmp.TypeLoginResult, "1")
	case acct.Banned:
		return false, send(w, codec, hnmp.TypeLoginResult, "2", acct.BanReason)
	}

	s.logger().Info("login accepted", "user", m.Data[0])
	if err := send(w, codec, hnmp.TypeLoginResult, "0"); err != nil {
		return true, err
	}
	if err := send(w, codec, hnmp.TypeWorldInit, s.Home, hnmp.FormatNodes(s.Nodes)); err != nil {
		return true, err
	}
	if s.Motd != "" {
		if err := send(w, codec, hnmp.TypeText, s.Motd); err != nil {
			return true, err
		}
	}
	if s.KickReason != "" {
		return true, send(w, codec, hnmp.TypeDisconnect, s.KickReason)
	}
	return false, nil
}

func (s *Script) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func send(w io.Writer, codec hnmp.Codec, t hnmp.Type, data ...string) error {
	frame, err := codec.Encode(hnmp.NewMessage(t, data...))
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return errors.Wrapf(err, "send %s", t)
}
