// Package client sends pipelines to a txpipe server and waits for the
// verdict.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ib-77/txpipe/pkg/codec"
	"github.com/ib-77/txpipe/pkg/envelope"
	"github.com/ib-77/txpipe/pkg/rop"
	"github.com/ib-77/txpipe/pkg/transport"
)

var (
	// ErrTransport wraps every failure to exchange a request and its reply.
	// The client is unusable afterwards.
	ErrTransport = errors.New("transport error")
	// ErrCorrelation means the reply carried another request's id.
	ErrCorrelation = errors.New("correlation id mismatch")
	// ErrRejected means the server refused the request; the reply's Error
	// field says why.
	ErrRejected = errors.New("request rejected")
)

// RunOptions is the policy sent along with the items.
type RunOptions struct {
	AllOrNone bool
	// Retries is the per-item attempt budget; zero means
	// envelope.DefaultRetries.
	Retries int
	// Pipeline names the server-side pipeline; empty means its default.
	Pipeline string
}

// Client holds one connection and allows one request in flight on it.
type Client struct {
	conn   transport.Conn
	codec  codec.Codec
	logger *zap.Logger

	mu     sync.Mutex
	broken error
}

// Dial connects to a server. The codec must match the server's.
func Dial(ctx context.Context, t transport.Transport, address string, c codec.Codec, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := t.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s %s: %w", ErrTransport, t.Kind(), address, err)
	}
	logger.Debug("connected", zap.String("transport", t.Kind()), zap.String("addr", address))
	return &Client{conn: conn, codec: c, logger: logger}, nil
}

// Run sends items as one pipeline and blocks for the reply. A value that
// is not a slice or array is sent as a one-item pipeline. The reply is
// returned even alongside ErrCorrelation or ErrRejected.
func (c *Client) Run(ctx context.Context, items any, opts RunOptions) (envelope.Response[any, any], error) {
	retries := opts.Retries
	if retries == 0 {
		retries = envelope.DefaultRetries
	}
	req := envelope.NewRequest(toItems(items), opts.AllOrNone, retries)
	req.Pipeline = opts.Pipeline

	logger := c.logger.With(zap.String("correlation_id", req.CorrelationID))

	frame, err := c.codec.Marshal(req)
	if err != nil {
		return envelope.Response[any, any]{}, fmt.Errorf("encode request: %w", err)
	}

	raw, err := c.roundTrip(ctx, frame)
	if err != nil {
		if rop.IsCancellationError(err) {
			logger.Debug("request abandoned", zap.Error(err))
		} else {
			logger.Warn("request failed", zap.Error(err))
		}
		return envelope.Response[any, any]{}, err
	}

	var resp envelope.Response[any, any]
	if err := c.codec.Unmarshal(raw, &resp); err != nil {
		return envelope.Response[any, any]{}, fmt.Errorf("decode response: %w", err)
	}

	if resp.CorrelationID != req.CorrelationID {
		logger.Warn("correlation id mismatch", zap.String("received", resp.CorrelationID))
		return resp, fmt.Errorf("%w: sent %s, received %s", ErrCorrelation, req.CorrelationID, resp.CorrelationID)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}

	logger.Debug("response received",
		zap.Bool("success", resp.Success),
		zap.Int("results", len(resp.Results)),
		zap.Int("failures", len(resp.Failures)))
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, c.broken
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.fail(ctx, err)
	}
	// cancellation without a deadline still has to unblock Recv
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.Send(frame); err != nil {
		return nil, c.fail(ctx, err)
	}
	raw, err := c.conn.Recv()
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	return raw, nil
}

// fail poisons the client: a request whose reply was never read leaves the
// connection out of step.
func (c *Client) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	} else if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		// the connection deadline can fire just ahead of the context's
		err = errors.Join(context.DeadlineExceeded, err)
	}
	c.broken = fmt.Errorf("%w: %w", ErrTransport, err)
	_ = c.conn.Close()
	return c.broken
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		c.broken = fmt.Errorf("%w: %w", ErrTransport, transport.ErrClosed)
	}
	return c.conn.Close()
}

func toItems(items any) []any {
	if items == nil {
		return []any{}
	}
	if list, ok := items.([]any); ok {
		return list
	}
	v := reflect.ValueOf(items)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			// []byte is one value, not a pipeline of bytes
			return []any{items}
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = v.Index(i).Interface()
		}
		return out
	default:
		return []any{items}
	}
}
