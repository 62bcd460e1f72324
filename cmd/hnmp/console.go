package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Zereker/hnmp"
)

// console prints connection events as plain text lines.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ hnmp.Handler = (*console)(nil)

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) OnSessionTeardown(reason string) {
	c.printf("* session ended: %s", reason)
}

func (c *console) OnDisplayText(text string) {
	c.printf("%s", text)
}

func (c *console) OnKernelEvent(fields []string) {
	c.printf("[kernel] %s", strings.Join(fields, " "))
}

func (c *console) OnWorldInit(homeID string, nodes []hnmp.Node) {
	c.printf("* home node %s, %d known nodes", homeID, len(nodes))
	for _, n := range nodes {
		c.printf("  %-20s (%g, %g)", n.ID, n.X, n.Y)
	}
}

func (c *console) OnEffect(fields []string) {
	c.printf("[fx] %s", strings.Join(fields, " "))
}

func (c *console) OnLoginResult(status hnmp.LoginStatus, reason string) {
	switch status {
	case hnmp.LoginSuccess:
		c.printf("* logged in")
	case hnmp.LoginInvalid:
		c.printf("* login failed: invalid username or password")
	case hnmp.LoginRejected:
		if reason == "" {
			reason = "no reason given"
		}
		c.printf("* login rejected: %s", reason)
	}
}

func (c *console) OnConnectionUnavailable() {
	c.printf("* server unavailable")
}
