package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ib-77/txpipe/pkg/capability"
	"github.com/ib-77/txpipe/pkg/codec"
	"github.com/ib-77/txpipe/pkg/pipeline"
	"github.com/ib-77/txpipe/pkg/rop"
	"github.com/ib-77/txpipe/pkg/transport"
)

// Observer receives executor counts plus requests refused before execution.
type Observer interface {
	pipeline.Observer
	ObserveRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveItem(string, bool, int)               {}
func (nopObserver) ObservePipeline(string, bool, time.Duration) {}
func (nopObserver) ObserveRollback(string, error)               {}
func (nopObserver) ObserveRejected(string)                      {}

type Server struct {
	transport  transport.Transport
	codec      codec.Codec
	registry   *capability.Registry
	logger     *zap.Logger
	observer   Observer
	retryDelay time.Duration
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithRetryDelay sets the pause between attempts of a failing item.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Server) { s.retryDelay = d }
}

func New(t transport.Transport, c codec.Codec, reg *capability.Registry, opts ...Option) *Server {
	s := &Server{
		transport: t,
		codec:     c,
		registry:  reg,
		logger:    zap.NewNop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe binds address on the server's transport and serves until
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	l, err := s.transport.Listen(ctx, address)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", s.transport.Kind(), address, err)
	}
	return s.Serve(ctx, l)
}

type job struct {
	frame []byte
	reply chan []byte
}

// Serve accepts sessions from l until ctx is done or accepting fails. On
// shutdown a request already taken by the serving loop is completed and its
// reply delivered before the session is closed. Serve closes l.
func (s *Server) Serve(ctx context.Context, l transport.Listener) error {
	s.logger.Info("listening",
		zap.String("transport", s.transport.Kind()),
		zap.String("addr", l.Addr().String()),
		zap.String("codec", s.codec.Name()),
		zap.Strings("pipelines", s.registry.Names()))

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	sessions := newSessionSet()

	g.Go(func() error {
		defer l.Close()
		for {
			conn, err := l.Accept(gctx)
			if err != nil {
				if rop.IsCancellationError(err) || gctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			sessions.start(gctx, conn, jobs, s.logger)
		}
	})

	g.Go(func() error {
		s.loop(gctx, jobs)
		return nil
	})

	err := g.Wait()
	sessions.shutdown()
	s.logger.Info("server stopped")
	return err
}

// loop is the only place requests are executed.
func (s *Server) loop(ctx context.Context, jobs <-chan job) {
	// a taken request runs to completion even while shutting down
	runCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-jobs:
			j.reply <- s.handle(runCtx, j.frame)
		}
	}
}

// sessionSet tracks live sessions so shutdown can close them.
type sessionSet struct {
	mu   sync.Mutex
	wg   sync.WaitGroup
	live map[*session]struct{}
}

func newSessionSet() *sessionSet {
	return &sessionSet{live: make(map[*session]struct{})}
}

func (ss *sessionSet) start(ctx context.Context, conn transport.Conn, jobs chan<- job, logger *zap.Logger) {
	sess := &session{conn: conn, logger: logger.With(zap.String("peer", conn.RemoteAddr()))}

	ss.mu.Lock()
	ss.live[sess] = struct{}{}
	ss.mu.Unlock()

	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		defer func() {
			ss.mu.Lock()
			delete(ss.live, sess)
			ss.mu.Unlock()
		}()
		sess.run(ctx, jobs)
	}()
}

// shutdown closes idle sessions, lets busy ones deliver their reply, and
// waits for all of them to exit.
func (ss *sessionSet) shutdown() {
	ss.mu.Lock()
	for sess := range ss.live {
		sess.stop()
	}
	ss.mu.Unlock()
	ss.wg.Wait()
}

type session struct {
	conn   transport.Conn
	logger *zap.Logger

	mu      sync.Mutex
	busy    bool
	closing bool
}

func (sess *session) run(ctx context.Context, jobs chan<- job) {
	defer sess.conn.Close()
	sess.logger.Debug("session opened")

	for {
		frame, err := sess.conn.Recv()
		if err != nil {
			if transport.IsClosed(err) || ctx.Err() != nil {
				sess.logger.Debug("session closed")
			} else {
				sess.logger.Warn("receive failed, closing session", zap.Error(err))
			}
			return
		}
		if !sess.begin() {
			return
		}

		j := job{frame: frame, reply: make(chan []byte, 1)}
		select {
		case jobs <- j:
		case <-ctx.Done():
			sess.end()
			return
		}

		// once the loop has taken the job a reply always follows
		out := <-j.reply
		if out == nil {
			sess.end()
			return
		}
		if err := sess.conn.Send(out); err != nil {
			sess.logger.Warn("send failed, closing session", zap.Error(err))
			sess.end()
			return
		}
		if !sess.end() {
			return
		}
	}
}

func (sess *session) begin() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closing {
		return false
	}
	sess.busy = true
	return true
}

// end marks the session idle and reports whether it may keep reading.
func (sess *session) end() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.busy = false
	return !sess.closing
}

func (sess *session) stop() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.closing = true
	if !sess.busy {
		_ = sess.conn.Close()
	}
}
