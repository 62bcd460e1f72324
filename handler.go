package hnmp

// Handler receives the events produced by a connection. It is the only
// channel between the protocol engine and the presentation layer.
//
// Message callbacks run on the connection's receive goroutine, one at a
// time and in wire order. OnSessionTeardown runs on whichever goroutine
// first observed the end of the connection, at most once per Conn.
// OnConnectionUnavailable runs on the goroutine that called Dial.
type Handler interface {
	// OnSessionTeardown is called once when an active session ends.
	OnSessionTeardown(reason string)
	// OnDisplayText is called for every MESSG frame.
	OnDisplayText(text string)
	// OnKernelEvent is called for every KERNL frame.
	OnKernelEvent(fields []string)
	// OnWorldInit is called for every START frame with the parsed node list.
	OnWorldInit(homeID string, nodes []Node)
	// OnEffect is called for every FX frame.
	OnEffect(fields []string)
	// OnLoginResult is called for every LOGRE frame. reason is only set
	// for LoginRejected, and may be empty.
	OnLoginResult(status LoginStatus, reason string)
	// OnConnectionUnavailable is called when Dial fails because the
	// endpoint refused the connection, before any teardown.
	OnConnectionUnavailable()
}

// NopHandler implements Handler with no-ops. Embed it to override only
// the callbacks you care about.
type NopHandler struct{}

var _ Handler = NopHandler{}

func (NopHandler) OnSessionTeardown(string) {}
func (NopHandler) OnDisplayText(string) {}
func (NopHandler) OnKernelEvent([]string) {}
func (NopHandler) OnWorldInit(string, []Node) {}
func (NopHandler) OnEffect([]string) {}
func (NopHandler) OnLoginResult(LoginStatus, string) {}
func (NopHandler) OnConnectionUnavailable() {}
