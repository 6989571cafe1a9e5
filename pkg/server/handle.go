package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ib-77/txpipe/pkg/capability"
	"github.com/ib-77/txpipe/pkg/envelope"
	"github.com/ib-77/txpipe/pkg/pipeline"
	"github.com/ib-77/txpipe/pkg/rop"
	"github.com/ib-77/txpipe/pkg/rop/chain"
	"github.com/ib-77/txpipe/pkg/rop/core"
)

var ErrUndecodable = errors.New("undecodable request")

const (
	reasonDecode  = "decode"
	reasonInvalid = "invalid"
)

// rejection carries whatever part of the request was decoded so the reply
// can still echo it.
type rejection struct {
	req    envelope.Request[any]
	reason string
	err    error
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

type call struct {
	req        envelope.Request[any]
	capability capability.Capability[any, any]
	name       string
}

// handle turns one request frame into one reply frame. It returns nil only
// when not even a rejection could be encoded.
func (s *Server) handle(ctx context.Context, frame []byte) []byte {
	decoded := chain.ThenTry(chain.FromValue(ctx, frame), s.decode)
	resolved := chain.Then(decoded, s.resolve)
	executed := chain.Map(resolved, s.execute)
	resp := chain.Finally(executed,
		func(_ context.Context, resp envelope.Response[any, any]) envelope.Response[any, any] {
			return resp
		},
		s.reject)

	out, err := s.codec.Marshal(resp)
	if err == nil {
		return out
	}
	s.logger.Error("encode response", zap.String("correlation_id", resp.CorrelationID), zap.Error(err))

	out, err = s.codec.Marshal(envelope.Reject[any, any](envelope.Request[any]{
		CorrelationID: resp.CorrelationID,
		AllOrNone:     resp.AllOrNone,
		MaxRetries:    resp.MaxRetries,
		Pipeline:      resp.Pipeline,
	}, fmt.Errorf("encode response: %w", err)))
	if err != nil {
		return nil
	}
	return out
}

func (s *Server) decode(_ context.Context, frame []byte) (envelope.Request[any], error) {
	var req envelope.Request[any]
	if err := s.codec.Unmarshal(frame, &req); err != nil {
		return envelope.Request[any]{}, &rejection{
			reason: reasonDecode,
			err:    fmt.Errorf("%w: %w", ErrUndecodable, err),
		}
	}
	return req, nil
}

func (s *Server) resolve(_ context.Context, req envelope.Request[any]) rop.Result[call] {
	c, name, err := s.registry.Lookup(req.Pipeline)
	if err != nil {
		return rop.Fail[call](&rejection{req: req, reason: reasonInvalid, err: err})
	}
	if err := req.Validate(); err != nil {
		return rop.Fail[call](&rejection{req: req, reason: reasonInvalid, err: err})
	}
	return rop.Success(call{req: req, capability: c, name: name})
}

func (s *Server) execute(ctx context.Context, c call) envelope.Response[any, any] {
	exec := pipeline.New(c.capability,
		pipeline.WithName(c.name),
		pipeline.WithLogger(s.logger),
		pipeline.WithObserver(s.observer))

	resp := exec.Run(core.WithRetryDelay(ctx, s.retryDelay), c.req)

	s.logger.Info("pipeline complete",
		zap.String("pipeline", c.name),
		zap.String("correlation_id", c.req.CorrelationID),
		zap.Bool("success", resp.Success),
		zap.Int("items", len(c.req.Items)),
		zap.Int("failures", len(resp.Failures)))
	return resp
}

func (s *Server) reject(_ context.Context, err error) envelope.Response[any, any] {
	var rej *rejection
	if !errors.As(err, &rej) {
		rej = &rejection{reason: reasonInvalid, err: err}
	}
	s.observer.ObserveRejected(rej.reason)
	s.logger.Warn("request rejected",
		zap.String("reason", rej.reason),
		zap.String("correlation_id", rej.req.CorrelationID),
		zap.Error(rej.err))
	return envelope.Reject[any, any](rej.req, rej.err)
}
