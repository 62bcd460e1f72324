package hnmp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/hnmp"
	"github.com/Zereker/hnmp/internal/stubserver"
)

// sessionRecorder collects what a client session saw.
type sessionRecorder struct {
	hnmp.NopHandler

	mu       sync.Mutex
	login    []hnmp.LoginStatus
	reasons  []string
	home     string
	nodes    []hnmp.Node
	texts    []string
	teardown []string

	loggedIn chan struct{}
	once     sync.Once
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{loggedIn: make(chan struct{})}
}

func (r *sessionRecorder) OnLoginResult(status hnmp.LoginStatus, reason string) {
	r.mu.Lock()
	r.login = append(r.login, status)
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
	r.once.Do(func() { close(r.loggedIn) })
}

func (r *sessionRecorder) OnWorldInit(homeID string, nodes []hnmp.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.home = homeID
	r.nodes = nodes
}

func (r *sessionRecorder) OnDisplayText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *sessionRecorder) OnSessionTeardown(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardown = append(r.teardown, reason)
}

func startStub(t *testing.T, script *stubserver.Script) *stubserver.Server {
	t.Helper()

	server, err := stubserver.New("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx, script)
	}()
	t.Cleanup(func() {
		cancel()
		server.Close()
		<-done
	})
	return server
}

func dialStub(t *testing.T, server *stubserver.Server, h hnmp.Handler) *hnmp.Conn {
	t.Helper()

	c, err := hnmp.NewConn(hnmp.HandlerOption(h))
	require.NoError(t, err)
	require.NoError(t, c.Dial(context.Background(), "127.0.0.1", server.Addr().Port))
	t.Cleanup(func() { c.Close() })
	return c
}

var accounts = map[string]stubserver.Account{
	"neo":    {Password: "zion"},
	"cypher": {Password: "steak", Banned: true, BanReason: "traitor"},
}

func TestSession_Kicked(t *testing.T) {
	server := startStub(t, &stubserver.Script{
		Accounts:   accounts,
		Home:       "10.0.0.1",
		Nodes:      []hnmp.Node{{ID: "10.0.0.2", X: 5, Y: 10}},
		Motd:       "welcome",
		KickReason: "maintenance",
	})

	rec := newSessionRecorder()
	c := dialStub(t, server, rec)
	require.NoError(t, c.Login("neo", "zion"))

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
	assert.NoError(t, c.Wait())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []hnmp.LoginStatus{hnmp.LoginSuccess}, rec.login)
	assert.Equal(t, "10.0.0.1", rec.home)
	assert.Equal(t, []hnmp.Node{{ID: "10.0.0.2", X: 5, Y: 10}}, rec.nodes)
	assert.Equal(t, []string{"welcome"}, rec.texts)
	assert.Equal(t, []string{"maintenance"}, rec.teardown)
	assert.Equal(t, "maintenance", c.Reason())
}

func TestSession_Rejected(t *testing.T) {
	server := startStub(t, &stubserver.Script{Accounts: accounts})

	rec := newSessionRecorder()
	c := dialStub(t, server, rec)
	require.NoError(t, c.Login("cypher", "steak"))

	select {
	case <-rec.loggedIn:
	case <-time.After(5 * time.Second):
		t.Fatal("no login result")
	}

	rec.mu.Lock()
	assert.Equal(t, []hnmp.LoginStatus{hnmp.LoginRejected}, rec.login)
	assert.Equal(t, []string{"traitor"}, rec.reasons)
	rec.mu.Unlock()

	assert.Equal(t, hnmp.StateConnected, c.State())
	require.NoError(t, c.Close())
	require.NoError(t, c.Wait())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{hnmp.ReasonClientClosed}, rec.teardown)
}

func TestSession_ServerGone(t *testing.T) {
	server := startStub(t, &stubserver.Script{Accounts: accounts})

	rec := newSessionRecorder()
	c := dialStub(t, server, rec)

	// the scripted session closes its socket when the server shuts down
	server.Close()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.teardown, 1)
}
