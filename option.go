package hnmp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Direction tells a Tracer which way a message travelled.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Tracer observes every message a connection dispatches or writes.
// It is called from the receive and send goroutines and must be safe for
// concurrent use.
type Tracer interface {
	Trace(connID string, dir Direction, m Message)
}

// options holds the configuration for a connection.
type options struct {
	codec   Codec
	handler Handler
	logger  Logger
	tracer  Tracer
	metrics prometheus.Registerer

	bufferSize     int           // size of the send queue
	readBufferSize int           // size of a single socket read
	maxFrameSize   int           // maximum bytes buffered for one undecoded frame
	dialTimeout    time.Duration // upper bound for a connect attempt
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the message codec.
// JSONCodec is used when no codec is set.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// HandlerOption returns an Option that sets the event handler.
// The handler is required.
func HandlerOption(h Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// BufferSizeOption returns an Option that sets the size of the send queue.
// A larger queue allows more frames to be pending before Send reports ErrBufferFull.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// ReadBufferSizeOption returns an Option that sets how many bytes a single
// socket read may return.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MessageMaxSize returns an Option that sets the maximum size of one frame.
// A connection buffering more undecoded bytes than this is torn down.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// DialTimeoutOption returns an Option that bounds each connect attempt.
func DialTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// TracerOption returns an Option that sets a message tracer.
func TracerOption(t Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// MetricsOption returns an Option that registers connection metrics with reg.
// Connections sharing a registerer share the same collectors. NewConn
// panics if reg already holds a conflicting collector under an hnmp_ name.
func MetricsOption(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metrics = reg
	}
}
