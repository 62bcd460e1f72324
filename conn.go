// Package hnmp is the client side of the HackNet multiplayer protocol.
// It owns a single TCP connection to a game server, frames the inbound
// byte stream into messages, dispatches them to a Handler, and writes
// outgoing requests in the same wire format.
package hnmp

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	// defaultBufferSize is the default size of the send queue.
	defaultBufferSize = 16
	// defaultReadBufferSize is the default size of one socket read.
	defaultReadBufferSize = 4096
	// defaultMaxFrameSize is the default maximum size of a single frame (1MB).
	defaultMaxFrameSize = 1024 * 1024
	// defaultDialTimeout bounds a connect attempt.
	defaultDialTimeout = 10 * time.Second
)

// outbound is an encoded frame waiting in the send queue.
type outbound struct {
	msg   Message
	frame []byte
}

// Conn is a client connection to a game server.
//
// A Conn is used once: Dial connects it, the receive and send loops run
// until the first fault or Disconnect, and it ends in StateClosed. Every
// fault, whatever its origin, becomes exactly one Disconnect.
type Conn struct {
	id         string
	opts       options
	logger     Logger
	metrics    *metrics
	dispatcher *Dispatcher

	state   atomic.Int32
	sendMsg chan outbound
	sent    atomic.Uint64

	// disconnected guards teardown; only the first Disconnect has effect.
	disconnected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once

	mu      sync.Mutex
	rawConn net.Conn
	reason  string
	err     error
}

// NewConn creates an idle connection. It applies the provided options and
// validates them before returning. Returns an error if the handler is missing.
func NewConn(opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return newConnWithOptions(opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.handler == nil {
		return ErrInvalidHandler
	}

	if opts.codec == nil {
		opts.codec = JSONCodec{}
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = defaultMaxFrameSize
	}

	if opts.dialTimeout <= 0 {
		opts.dialTimeout = defaultDialTimeout
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

func newConnWithOptions(opts options) *Conn {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:      id,
		opts:    opts,
		logger:  scoped(opts.logger, "conn_id", id),
		metrics: newMetrics(opts.metrics),
		sendMsg: make(chan outbound, opts.bufferSize),
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	c.dispatcher = NewDispatcher(opts.handler, c)
	return c
}

// ID returns the identifier used for this connection in logs and traces.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Ready is closed once the connect attempt has resolved, successfully or not.
func (c *Conn) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed once the connection has been torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the fault that ended the connection, or nil if it was
// closed by Disconnect without one.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Reason returns the disconnect reason, empty while the connection is alive.
func (c *Conn) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Sent returns the number of frames written to the socket so far.
func (c *Conn) Sent() uint64 {
	return c.sent.Load()
}

// Addr returns the remote address, or nil before the connection is established.
func (c *Conn) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rawConn == nil {
		return nil
	}
	return c.rawConn.RemoteAddr()
}

// Dial connects to address:port and starts the receive and send loops.
// It blocks until the attempt resolves; other goroutines may wait on Ready.
//
// When the server refuses the connection, Handler.OnConnectionUnavailable
// is called and the returned error matches ErrConnectionRefused. Any
// failure leaves the connection closed; there is no retry.
func (c *Conn) Dial(ctx context.Context, address string, port int) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrInvalidState
	}
	defer c.markReady()

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	c.logger.Debug("connecting", "addr", addr, "dial_timeout", c.opts.dialTimeout)

	dialCtx, stop := context.WithCancel(ctx)
	defer stop()
	unwatch := context.AfterFunc(c.ctx, stop)
	defer unwatch()

	dialer := net.Dialer{Timeout: c.opts.dialTimeout}
	raw, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return c.dialFailed(addr, err)
	}

	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c.mu.Lock()
	if c.disconnected.Load() {
		c.mu.Unlock()
		_ = raw.Close()
		c.stop()
		return ErrConnectionClosed
	}
	c.rawConn = raw
	c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		// Disconnect won the race and has already closed raw.
		c.stop()
		return ErrConnectionClosed
	}

	c.metrics.connectAttempt("ok")
	c.logger.Info("connection established", "addr", raw.RemoteAddr())
	c.logger.Debug("connection options", "addr", raw.RemoteAddr(),
		"buffer_size", c.opts.bufferSize,
		"read_buffer_size", c.opts.readBufferSize,
		"max_frame_size", c.opts.maxFrameSize)

	go c.run()
	return nil
}

// dialFailed classifies a connect error, notifies the handler when the
// endpoint refused us, and tears the connection down.
func (c *Conn) dialFailed(addr string, err error) error {
	if c.disconnected.Load() {
		// Closed while connecting; the dial was canceled on our behalf.
		c.stop()
		return ErrConnectionClosed
	}

	if isRefused(err) {
		c.metrics.connectAttempt("refused")
		c.logger.Warn("server unavailable", "addr", addr, "error", err)
		c.opts.handler.OnConnectionUnavailable()
		// pkg/errors wraps a single cause; callers match both the
		// sentinel and the underlying syscall error.
		err = fmt.Errorf("dial %s: %w: %w", addr, ErrConnectionRefused, err)
	} else {
		c.metrics.connectAttempt("error")
		c.logger.Warn("connect failed", "addr", addr, "error", err)
		err = errors.Wrapf(err, "dial %s", addr)
	}

	c.setErr(err)
	c.Disconnect(ReasonConnectionLost, false)
	c.stop()
	return err
}

// run supervises the receive and send loops until both have exited.
func (c *Conn) run() {
	defer c.stop()

	group, ctx := errgroup.WithContext(c.ctx)

	group.Go(func() error {
		return c.readLoop(ctx)
	})

	group.Go(func() error {
		return c.writeLoop(ctx)
	})

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrConnectionClosed) {
		c.logger.Info("connection closed with error", "error", err)
	} else {
		c.logger.Info("connection closed", "reason", c.Reason())
	}
}

// Wait blocks until the connection is closed and its loops have exited.
// It returns the fault that ended the connection, if any.
func (c *Conn) Wait() error {
	<-c.done
	<-c.stopped
	return c.Err()
}

// Close ends the connection from the client side. It is safe to call
// multiple times and from any goroutine.
func (c *Conn) Close() error {
	c.Disconnect(ReasonClientClosed, c.State() == StateConnected)
	return nil
}

// IsClosed returns true once teardown has started.
func (c *Conn) IsClosed() bool {
	return c.disconnected.Load()
}

// Disconnect tears the connection down. Only the first call has effect,
// whichever path it comes from: a transport fault, a protocol fault, a
// DSCON frame, or Close. A blank reason is replaced by
// DefaultDisconnectReason. The socket is always closed; the handler's
// OnSessionTeardown is called only when activeSession is set.
func (c *Conn) Disconnect(reason string, activeSession bool) {
	if !c.disconnected.CompareAndSwap(false, true) {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultDisconnectReason
	}

	prev := State(c.state.Swap(int32(StateDisconnecting)))

	c.mu.Lock()
	c.reason = reason
	raw := c.rawConn
	c.mu.Unlock()

	c.cancel()
	if raw != nil {
		if err := raw.Close(); err != nil {
			c.logger.Debug("close socket", "error", err)
		}
	}

	c.metrics.disconnect(prev == StateConnected, activeSession)
	c.logger.Info("disconnected", "reason", reason, "active_session", activeSession, "state", prev)

	if activeSession {
		c.opts.handler.OnSessionTeardown(reason)
	}

	c.state.Store(int32(StateClosed))
	close(c.done)
	c.markReady()
	if prev == StateIdle {
		c.stop()
	}
}

// Login sends the credentials to the server. The outcome arrives through
// Handler.OnLoginResult.
func (c *Conn) Login(username, password string) error {
	return c.Send(TypeLogin, username, password)
}

// Send queues a message without blocking (fire-and-forget).
//
// Returns:
//   - nil: the frame was queued (not yet written)
//   - ErrBufferFull: the send queue is full, the frame was NOT queued
//   - ErrConnectionClosed: the connection is closed
//   - ErrInvalidState: the connection is not established yet
//   - encoding error: if the codec rejects the message
//
// A failed write tears the connection down rather than being reported here.
func (c *Conn) Send(t Type, data ...string) error {
	out, err := c.prepare(t, data)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- out:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendContext queues a message, blocking until there is room in the send
// queue, the context is canceled, or the connection closes.
func (c *Conn) SendContext(ctx context.Context, t Type, data ...string) error {
	out, err := c.prepare(t, data)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnectionClosed
	}
}

// SendTimeout queues a message, waiting at most timeout for room in the
// send queue. It returns ErrBufferFull when the timeout expires.
func (c *Conn) SendTimeout(timeout time.Duration, t Type, data ...string) error {
	out, err := c.prepare(t, data)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- out:
		return nil
	case <-timer.C:
		return ErrBufferFull
	case <-c.done:
		return ErrConnectionClosed
	}
}

func (c *Conn) prepare(t Type, data []string) (outbound, error) {
	switch c.State() {
	case StateConnected:
	case StateIdle, StateConnecting:
		return outbound{}, ErrInvalidState
	default:
		return outbound{}, ErrConnectionClosed
	}

	m := NewMessage(t, data...)
	frame, err := c.opts.codec.Encode(m)
	if err != nil {
		return outbound{}, err
	}
	return outbound{msg: m, frame: frame}, nil
}

// readLoop reads from the socket, decodes every complete frame and
// dispatches it, then reads again. It returns on the first fault or once
// the connection has left StateConnected.
func (c *Conn) readLoop(ctx context.Context) error {
	chunk := make([]byte, c.opts.readBufferSize)
	dec := newStreamDecoder(c.opts.codec)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := c.rawConn.Read(chunk)
		if n > 0 {
			c.metrics.received(n)
			msgs, decodeErr := dec.Feed(chunk[:n])

			for _, m := range msgs {
				if c.State() != StateConnected {
					return nil
				}
				c.metrics.frameReceived(m.Type)
				c.trace(Inbound, m)
				if err := c.dispatcher.Dispatch(m); err != nil {
					c.metrics.protocolError()
					return c.fault(err, ReasonConnectionLost)
				}
			}

			if decodeErr != nil {
				c.metrics.protocolError()
				return c.fault(decodeErr, ReasonConnectionLost)
			}

			if pending := dec.Buffered(); pending > c.opts.maxFrameSize {
				c.metrics.protocolError()
				return c.fault(errors.Wrapf(ErrFrameTooLarge, "%d bytes pending", pending), ReasonConnectionLost)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return c.fault(errors.Wrap(err, "remote closed"), ReasonRemoteClosed)
			}
			return c.fault(errors.Wrap(err, "read"), ReasonConnectionLost)
		}

		if n == 0 {
			return c.fault(errors.Wrap(io.EOF, "empty read"), ReasonRemoteClosed)
		}
	}
}

// writeLoop writes queued frames in order until the first fault.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-c.sendMsg:
			if _, err := c.rawConn.Write(out.frame); err != nil {
				return c.fault(errors.Wrap(err, "write"), ReasonConnectionLost)
			}
			c.sent.Add(1)
			c.metrics.frameSent(out.msg.Type, len(out.frame))
			c.trace(Outbound, out.msg)
		}
	}
}

// fault records err as the cause of the teardown and disconnects. Faults
// observed after teardown started are consequences of it and are dropped.
func (c *Conn) fault(err error, reason string) error {
	if c.disconnected.Load() {
		return ErrConnectionClosed
	}
	c.setErr(err)
	c.logger.Debug("connection fault", "error", err)
	c.Disconnect(reason, true)
	return err
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) trace(dir Direction, m Message) {
	if c.opts.tracer != nil {
		c.opts.tracer.Trace(c.id, dir, m)
	}
}

func (c *Conn) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Conn) stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}
