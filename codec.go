package hnmp

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Codec is the interface for message encoding and decoding.
//
// Decode works on an accumulated byte buffer rather than on the socket:
// TCP delivers an unframed stream, so a read may end in the middle of a
// frame. Decode returns every complete message found in buf and the
// unconsumed suffix, which the caller must prefix onto the next chunk.
type Codec interface {
	// Decode extracts the complete messages at the start of buf.
	// leftover never contains a complete frame. On error the messages
	// decoded before the faulty frame are still returned.
	Decode(buf []byte) (msgs []Message, leftover []byte, err error)
	// Encode serializes a message into one wire frame.
	Encode(Message) ([]byte, error)
}

// wireFrame is the JSON shape of a frame on the wire.
type wireFrame struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
}

type outFrame struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

// StreamDecoder decodes one connection's byte stream incrementally.
type StreamDecoder interface {
	// Feed appends p to the stream and returns the messages it completes.
	Feed(p []byte) ([]Message, error)
	// Buffered returns the number of bytes held for an incomplete frame.
	Buffered() int
}

// StreamCodec is implemented by codecs that keep scan state between
// reads, so every received byte is examined once no matter how the
// server splits a frame.
type StreamCodec interface {
	Codec
	NewStreamDecoder() StreamDecoder
}

// newStreamDecoder returns the codec's own stream decoder, or one that
// re-decodes the accumulated buffer on every read.
func newStreamDecoder(c Codec) StreamDecoder {
	if sc, ok := c.(StreamCodec); ok {
		return sc.NewStreamDecoder()
	}
	return &bufferedDecoder{codec: c}
}

type bufferedDecoder struct {
	codec   Codec
	pending []byte
}

func (d *bufferedDecoder) Feed(p []byte) ([]Message, error) {
	d.pending = append(d.pending, p...)
	msgs, leftover, err := d.codec.Decode(d.pending)
	d.pending = leftover
	return msgs, err
}

func (d *bufferedDecoder) Buffered() int { return len(d.pending) }

// JSONCodec frames messages as concatenated JSON objects of the form
// {"type":"TAG","data":["...",...]}. Frame boundaries are found by
// scanning for the balanced closing brace, so no length prefix or
// delimiter is needed. Whitespace between frames is ignored.
type JSONCodec struct{}

var _ StreamCodec = JSONCodec{}

// NewStreamDecoder implements StreamCodec.
func (JSONCodec) NewStreamDecoder() StreamDecoder {
	return &jsonStream{}
}

// Encode implements Codec.
func (JSONCodec) Encode(m Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, errors.Errorf("encode: invalid message type %d", int(m.Type))
	}
	data := m.Data
	if data == nil {
		data = []string{}
	}
	b, err := json.Marshal(outFrame{Type: m.Type.String(), Data: data})
	if err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return b, nil
}

// Decode implements Codec.
func (JSONCodec) Decode(buf []byte) ([]Message, []byte, error) {
	var msgs []Message
	pos := 0
	for {
		pos = skipSpace(buf, pos)
		if pos == len(buf) {
			return msgs, nil, nil
		}
		if buf[pos] != '{' {
			return msgs, nil, decodeError("", errors.Errorf("unexpected byte %q outside a frame", buf[pos]))
		}

		end, ok := scanFrame(buf[pos:])
		if !ok {
			return msgs, copyBytes(buf[pos:]), nil
		}

		m, err := parseFrame(buf[pos : pos+end])
		if err != nil {
			return msgs, nil, err
		}
		msgs = append(msgs, m)
		pos += end
	}
}

// jsonStream is the resumable form of JSONCodec.Decode. Between calls buf
// holds at most one incomplete frame, and scanning resumes at pos.
type jsonStream struct {
	buf     []byte
	start   int // offset of the frame being scanned
	pos     int
	inFrame bool
	scan    frameScanner
	scanned int // bytes fed through the brace scanner
}

// retainLimit caps the buffer capacity kept once a frame completes.
const retainLimit = 64 * 1024

// Feed implements StreamDecoder.
func (d *jsonStream) Feed(p []byte) ([]Message, error) {
	d.buf = append(d.buf, p...)

	var msgs []Message
	for {
		if !d.inFrame {
			d.pos = skipSpace(d.buf, d.pos)
			if d.pos == len(d.buf) {
				d.reset()
				return msgs, nil
			}
			if d.buf[d.pos] != '{' {
				return msgs, decodeError("", errors.Errorf("unexpected byte %q outside a frame", d.buf[d.pos]))
			}
			d.start, d.inFrame, d.scan = d.pos, true, frameScanner{}
		}

		end := -1
		for ; d.pos < len(d.buf); d.pos++ {
			d.scanned++
			if d.scan.step(d.buf[d.pos]) {
				end = d.pos + 1
				break
			}
		}
		if end < 0 {
			d.compact()
			return msgs, nil
		}

		m, err := parseFrame(d.buf[d.start:end])
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
		d.pos, d.inFrame = end, false
	}
}

// Buffered implements StreamDecoder.
func (d *jsonStream) Buffered() int { return len(d.buf) - d.start }

func (d *jsonStream) reset() {
	if cap(d.buf) > retainLimit {
		d.buf = nil
	} else {
		d.buf = d.buf[:0]
	}
	d.start, d.pos = 0, 0
}

// compact moves the incomplete frame to the front of buf.
func (d *jsonStream) compact() {
	if d.start == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.start:])
	d.buf = d.buf[:n]
	d.pos -= d.start
	d.start = 0
}

func parseFrame(raw []byte) (Message, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Message{}, decodeError("", errors.Wrap(err, "malformed frame"))
	}
	t, ok := ParseType(f.Type)
	if !ok {
		return Message{}, decodeError(f.Type, errors.New("unrecognized message type"))
	}
	data := make([]string, len(f.Data))
	for i, rm := range f.Data {
		if err := json.Unmarshal(rm, &data[i]); err != nil {
			return Message{}, decodeError(f.Type, errors.Errorf("data[%d] is not a string", i))
		}
	}
	return Message{Type: t, Data: data}, nil
}

// scanFrame returns the length of the JSON object starting at buf[0],
// which must be '{'. ok is false when the object is not yet complete.
func scanFrame(buf []byte) (n int, ok bool) {
	var s frameScanner
	for i, c := range buf {
		if s.step(c) {
			return i + 1, true
		}
	}
	return 0, false
}

// frameScanner tracks brace depth across a JSON object, skipping braces
// inside string literals.
type frameScanner struct {
	depth    int
	inString bool
	escaped  bool
}

// step consumes one byte and reports whether it closed the outermost object.
func (s *frameScanner) step(c byte) bool {
	if s.inString {
		switch {
		case s.escaped:
			s.escaped = false
		case c == '\\':
			s.escaped = true
		case c == '"':
			s.inString = false
		}
		return false
	}
	switch c {
	case '"':
		s.inString = true
	case '{', '[':
		s.depth++
	case '}', ']':
		s.depth--
		return s.depth == 0
	}
	return false
}

func skipSpace(buf []byte, pos int) int {
	for pos < len(buf) {
		switch buf[pos] {
		case ' ', '\t', '\r', '\n':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func copyBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
