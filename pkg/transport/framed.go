package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// FramedConn carries messages over a byte stream as u32 little-endian
// length-prefixed frames.
type FramedConn struct {
	mu sync.Mutex
	c  net.Conn
	br *bufio.Reader
	bw *bufio.Writer
}

func NewFramedConn(c net.Conn) *FramedConn {
	return &FramedConn{c: c, br: bufio.NewReader(c), bw: bufio.NewWriter(c)}
}

func (f *FramedConn) Send(b []byte) error {
	if len(b) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := f.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := f.bw.Write(b); err != nil {
		return err
	}
	return f.bw.Flush()
}

func (f *FramedConn) Recv() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(f.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenbuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *FramedConn) SetDeadline(t time.Time) error { return f.c.SetDeadline(t) }
func (f *FramedConn) RemoteAddr() string            { return f.c.RemoteAddr().String() }
func (f *FramedConn) Close() error                  { return f.c.Close() }
