package hnmp

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Disconnector ends a connection. *Conn implements it.
type Disconnector interface {
	Disconnect(reason string, activeSession bool)
}

// Dispatcher maps each decoded message to exactly one Handler call.
// It is not safe for concurrent use; a Conn calls it from its receive
// goroutine only.
type Dispatcher struct {
	handler Handler
	conn    Disconnector
}

// NewDispatcher returns a Dispatcher delivering to h. Server-driven
// disconnects are forwarded to conn.
func NewDispatcher(h Handler, conn Disconnector) *Dispatcher {
	return &Dispatcher{handler: h, conn: conn}
}

// Dispatch delivers m. A returned error is always a *ProtocolError and is
// fatal for the connection.
func (d *Dispatcher) Dispatch(m Message) error {
	switch m.Type {
	case TypeLoginResult:
		return d.loginResult(m)
	case TypeText:
		text, ok := m.Field(0)
		if !ok {
			return dispatchError(m.Type.String(), errors.New("missing text field"))
		}
		d.handler.OnDisplayText(text)
	case TypeKernelEvent:
		if len(m.Data) == 0 {
			return dispatchError(m.Type.String(), errors.New("empty kernel event"))
		}
		d.handler.OnKernelEvent(m.Data)
	case TypeWorldInit:
		if len(m.Data) != 2 {
			return dispatchError(m.Type.String(), errors.Errorf("want 2 fields, got %d", len(m.Data)))
		}
		nodes, err := ParseNodes(m.Data[1])
		if err != nil {
			return dispatchError(m.Type.String(), err)
		}
		d.handler.OnWorldInit(m.Data[0], nodes)
	case TypeEffect:
		d.handler.OnEffect(m.Data)
	case TypeOSMessage:
	case TypeDisconnect:
		reason, ok := m.Field(0)
		if !ok {
			return dispatchError(m.Type.String(), errors.New("missing reason field"))
		}
		d.conn.Disconnect(reason, true)
	default:
		return dispatchError(m.Type.String(), errors.New("unrecognized message type"))
	}
	return nil
}

func (d *Dispatcher) loginResult(m Message) error {
	code, ok := m.Field(0)
	if !ok {
		return dispatchError(m.Type.String(), errors.New("missing result code"))
	}
	switch code {
	case "0":
		d.handler.OnLoginResult(LoginSuccess, "")
	case "1":
		d.handler.OnLoginResult(LoginInvalid, "")
	case "2":
		reason, _ := m.Field(1)
		d.handler.OnLoginResult(LoginRejected, strings.TrimSpace(reason))
	default:
		return dispatchError(m.Type.String(), errors.Errorf("unknown result code %q", code))
	}
	return nil
}

// ParseNodes parses a START node list. Nodes are written as "id:x,y" and
// joined with commas, so the list "a:1,2,b:3,4" holds two nodes. An empty
// list yields no nodes.
func ParseNodes(s string) ([]Node, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	tokens := strings.Split(s, ",")
	if len(tokens)%2 != 0 {
		return nil, errors.Errorf("node list %q: odd number of coordinates", s)
	}

	nodes := make([]Node, 0, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		id, xs, ok := strings.Cut(tokens[i], ":")
		if !ok || id == "" {
			return nil, errors.Errorf("node %d: %q is not id:x", i/2, tokens[i])
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s: x", id)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(tokens[i+1]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s: y", id)
		}
		nodes = append(nodes, Node{ID: id, X: x, Y: y})
	}
	return nodes, nil
}

// FormatNodes is the inverse of ParseNodes.
func FormatNodes(nodes []Node) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, n.ID+":"+
			strconv.FormatFloat(n.X, 'f', -1, 64)+","+
			strconv.FormatFloat(n.Y, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}
