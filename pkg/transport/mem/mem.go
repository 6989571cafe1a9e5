// Package mem is an in-process transport using net.Pipe. Useful for tests
// and for embedding a server and its clients in one binary.
package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/ib-77/txpipe/pkg/transport"
)

var ErrNoListener = errors.New("mem: no such listener")

type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

var (
	defaultOnce sync.Once
	defaultT    *Transport
)

// Default returns the process-wide mem transport shared by every caller
// that selects the "mem" kind.
func Default() *Transport {
	defaultOnce.Do(func() { defaultT = New() })
	return defaultT
}

func (t *Transport) Kind() string { return "mem" }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan net.Conn), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		select {
		case <-ctx.Done():
		case <-l.closeCh:
		}
		_ = l.Close()
		t.mu.Lock()
		if t.listeners[name] == l {
			delete(t.listeners, name)
		}
		t.mu.Unlock()
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, ErrNoListener
	}

	srv, cli := net.Pipe()
	select {
	case l.newCh <- srv:
		return transport.NewFramedConn(cli), nil
	case <-l.closeCh:
		_ = srv.Close()
		_ = cli.Close()
		return nil, transport.ErrClosed
	case <-ctx.Done():
		_ = srv.Close()
		_ = cli.Close()
		return nil, ctx.Err()
	}
}

type listener struct {
	name      string
	newCh     chan net.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

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
	l.closeOnce.Do(func() { close(l.closeCh) })
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
