package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

// MaxFrameSize bounds a single envelope on the wire.
const MaxFrameSize = 1 << 24

var (
	ErrClosed        = errors.New("transport closed")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Conn is a message-oriented bidirectional channel.
// Exactly one reader and one writer goroutine are expected.
type Conn interface {
	// Send writes one message.
	Send([]byte) error
	// Recv blocks for the next message.
	Recv() ([]byte, error)
	// SetDeadline bounds pending and future Send/Recv calls; zero clears it.
	SetDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until an inbound connection is available or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	// Close stops the listener and unblocks Accept.
	Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
	Kind() string
	// Listen starts accepting inbound connections on address; the listener
	// is closed when ctx is done.
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial connects to a listening peer.
	Dial(ctx context.Context, address string) (Conn, error)
}

// Address joins an interface and port into a listen/dial address.
func Address(iface string, port int) string {
	return net.JoinHostPort(iface, strconv.Itoa(port))
}

// IsClosed reports whether err means the peer or the local side closed the
// connection, as opposed to a fault worth logging.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrClosed)
}
