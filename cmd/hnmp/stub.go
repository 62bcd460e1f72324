package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/hnmp"
	"github.com/Zereker/hnmp/internal/stubserver"
)

type stubFlags struct {
	listen   string
	accounts []string
	banned   []string
	home     string
	nodes    string
	motd     string
	kick     string
	grace    time.Duration
}

func stubCmd(flags *globalFlags) *cobra.Command {
	var sf stubFlags

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run a scripted server for local testing",
		Long: `Run a minimal server that speaks the client wire format. It answers
logins from the given accounts, then sends the home node, the node
list and the message of the day. With --kick it ends every session
right after login.

Examples:
  hnmp stub --account neo:zion --nodes "10.0.0.2:5,10"
  hnmp stub --account neo:zion --banned "cypher:steak:traitor"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStub(flags, sf)
		},
	}

	cmd.Flags().StringVarP(&sf.listen, "listen", "l", "", "Listen address (default server address and port from config)")
	cmd.Flags().StringArrayVarP(&sf.accounts, "account", "a", nil, "Account as user:password (repeatable)")
	cmd.Flags().StringArrayVar(&sf.banned, "banned", nil, "Banned account as user:password:reason (repeatable)")
	cmd.Flags().StringVar(&sf.home, "home", "127.0.0.1", "Home node sent after login")
	cmd.Flags().StringVar(&sf.nodes, "nodes", "", "Node list sent after login, as id:x,y,...")
	cmd.Flags().StringVar(&sf.motd, "motd", "Welcome to HackNet", "Message of the day")
	cmd.Flags().StringVar(&sf.kick, "kick", "", "Disconnect every session after login with this reason")
	cmd.Flags().DurationVar(&sf.grace, "grace", 0, "How long to keep accepting after an interrupt")

	return cmd
}

func runStub(flags *globalFlags, sf stubFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	script, err := sf.script()
	if err != nil {
		return err
	}
	script.Logger = slog.Default()

	addr := sf.listen
	if addr == "" {
		addr = net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port))
	}

	server, err := stubserver.New(addr,
		stubserver.LoggerOption(slog.Default()),
		stubserver.ShutdownTimeoutOption(sf.grace),
	)
	if err != nil {
		return err
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("stub server ready", "addr", server.Addr(), "accounts", len(script.Accounts))
	if err := server.Serve(ctx, script); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (sf stubFlags) script() (*stubserver.Script, error) {
	nodes, err := hnmp.ParseNodes(sf.nodes)
	if err != nil {
		return nil, errors.Wrap(err, "--nodes")
	}

	s := &stubserver.Script{
		Accounts:   make(map[string]stubserver.Account),
		Home:       sf.home,
		Nodes:      nodes,
		Motd:       sf.motd,
		KickReason: sf.kick,
	}

	for _, a := range sf.accounts {
		user, pass, ok := strings.Cut(a, ":")
		if !ok || user == "" {
			return nil, errors.Errorf("--account %q: want user:password", a)
		}
		s.Accounts[user] = stubserver.Account{Password: pass}
	}

	for _, b := range sf.banned {
		parts := strings.SplitN(b, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return nil, errors.Errorf("--banned %q: want user:password[:reason]", b)
		}
		acct := stubserver.Account{Password: parts[1], Banned: true}
		if len(parts) == 3 {
			acct.BanReason = parts[2]
		}
		s.Accounts[parts[0]] = acct
	}

	return s, nil
}
