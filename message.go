package hnmp

// Type identifies the kind of a Message. The zero value is not a valid type.
type Type int

// Message types known to the protocol.
const (
	// TypeLogin carries a username and password. Client to server only.
	TypeLogin Type = iota + 1
	// TypeLoginResult carries a result code and an optional reject reason.
	TypeLoginResult
	// TypeText carries a line to display.
	TypeText
	// TypeKernelEvent carries session events for the in-game kernel.
	TypeKernelEvent
	// TypeWorldInit carries the home node and the initially known nodes.
	TypeWorldInit
	// TypeOSMessage is reserved.
	TypeOSMessage
	// TypeEffect carries a visual effect request.
	TypeEffect
	// TypeDisconnect tells the client the server is ending the session.
	TypeDisconnect
)

var typeTags = map[Type]string{
	TypeLogin:       "LOGIN",
	TypeLoginResult: "LOGRE",
	TypeText:        "MESSG",
	TypeKernelEvent: "KERNL",
	TypeWorldInit:   "START",
	TypeOSMessage:   "OSMSG",
	TypeEffect:      "FX",
	TypeDisconnect:  "DSCON",
}

var tagTypes = func() map[string]Type {
	m := make(map[string]Type, len(typeTags))
	for t, tag := range typeTags {
		m[tag] = t
	}
	return m
}()

// String returns the wire tag of t.
func (t Type) String() string {
	if tag, ok := typeTags[t]; ok {
		return tag
	}
	return "UNKNOWN"
}

// Valid reports whether t is one of the recognized message types.
func (t Type) Valid() bool {
	_, ok := typeTags[t]
	return ok
}

// ParseType maps a wire tag to its Type.
func ParseType(tag string) (Type, bool) {
	t, ok := tagTypes[tag]
	return t, ok
}

// Message is a decoded protocol message: a type and its ordered string fields.
// The meaning and count of the fields depend on the type.
type Message struct {
	Type Type
	Data []string
}

// NewMessage builds a Message, copying data so the caller may reuse its slice.
func NewMessage(t Type, data ...string) Message {
	cp := make([]string, len(data))
	copy(cp, data)
	return Message{Type: t, Data: cp}
}

// Field returns the i-th field and whether it exists.
func (m Message) Field(i int) (string, bool) {
	if i < 0 || i >= len(m.Data) {
		return "", false
	}
	return m.Data[i], true
}

// LoginStatus is the outcome of a login request.
type LoginStatus int

const (
	// LoginSuccess means the credentials were accepted.
	LoginSuccess LoginStatus = iota
	// LoginInvalid means the account or password was wrong.
	LoginInvalid
	// LoginRejected means the server refused the session (for example a ban).
	LoginRejected
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSuccess:
		return "SUCCESS"
	case LoginInvalid:
		return "INVALID"
	case LoginRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Node is a world map entry announced by the server.
type Node struct {
	ID string
	X  float64
	Y  float64
}
