// Package tcp implements the request-reply transport over TCP with
// length-prefixed frames (u32 LE).
package tcp

import (
	"context"
	"net"
	"sync"

	"github.com/ib-77/txpipe/pkg/transport"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() string { return "tcp" }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, newCh: make(chan net.Conn), closeCh: make(chan struct{})}
	go tl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = tl.Close()
		case <-tl.closeCh:
		}
	}()
	return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	d := &net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return transport.NewFramedConn(c), nil
}

type listener struct {
	l         net.Listener
	newCh     chan net.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrClosed
	case c := <-l.newCh:
		return transport.NewFramedConn(c), nil
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.l.Close()
	})
	return err
}

func (l *listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		select {
		case l.newCh <- c:
		case <-l.closeCh:
			_ = c.Close()
			return
		}
	}
}
