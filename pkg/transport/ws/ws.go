// Package ws implements the request-reply transport over websockets. Each
// envelope travels as one binary message.
package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ib-77/txpipe/pkg/transport"
)

// Path is the HTTP path the listener upgrades on.
const Path = "/txpipe"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

type Transport struct {
	dialer *websocket.Dialer
}

func New() *Transport {
	return &Transport{dialer: &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}}
}

func (t *Transport) Kind() string { return "ws" }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	nl, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	l := &listener{nl: nl, newCh: make(chan *websocket.Conn), closeCh: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.upgrade)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() { _ = l.srv.Serve(nl) }()
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.closeCh:
		}
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	c, _, err := t.dialer.DialContext(ctx, "ws://"+address+Path, nil)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

type listener struct {
	nl        net.Listener
	srv       *http.Server
	newCh     chan *websocket.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (l *listener) upgrade(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	select {
	case l.newCh <- c:
	case <-l.closeCh:
		_ = c.Close()
	case <-r.Context().Done():
		_ = c.Close()
	}
}

func (l *listener) Addr() net.Addr { return l.nl.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrClosed
	case c := <-l.newCh:
		return newConn(c), nil
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.srv.Close()
	})
	return err
}

type conn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func newConn(c *websocket.Conn) *conn {
	c.SetReadLimit(transport.MaxFrameSize)
	return &conn{c: c}
}

func (w *conn) Send(b []byte) error {
	if len(b) > transport.MaxFrameSize {
		return transport.ErrFrameTooLarge
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteMessage(websocket.BinaryMessage, b)
}

func (w *conn) Recv() ([]byte, error) {
	for {
		mt, b, err := w.c.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, transport.ErrFrameTooLarge
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.BinaryMessage || mt == websocket.TextMessage {
			return b, nil
		}
	}
}

func (w *conn) SetDeadline(t time.Time) error {
	if err := w.c.SetReadDeadline(t); err != nil {
		return err
	}
	return w.c.SetWriteDeadline(t)
}

func (w *conn) RemoteAddr() string { return w.c.RemoteAddr().String() }

func (w *conn) Close() error {
	w.mu.Lock()
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.mu.Unlock()
	return w.c.Close()
}
