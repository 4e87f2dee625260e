// Package server is the demonstration TCP server: every accepted connection
// becomes one job on the thread pool, which reads a single request line and
// answers with a static file.
package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	rerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
	"github.com/vnykmshr/ruginx/pkg/metrics"
	"github.com/vnykmshr/ruginx/pkg/ratelimit/distributed"
	"github.com/vnykmshr/ruginx/pkg/threadpool"
)

const (
	statusOK              = "HTTP/1.1 200 OK"
	statusNotFound        = "HTTP/1.1 404 NOT FOUND"
	statusTooManyRequests = "HTTP/1.1 429 TOO MANY REQUESTS"

	indexRequestLine = "GET / HTTP/1.1"
	indexFile        = "hello.html"
	notFoundFile     = "404.html"
)

// Server accepts connections and hands each one to Pool.
type Server struct {
	Addr string
	Root string
	Pool threadpool.Submitter

	// Limiter, when set, is consulted once per accepted connection.
	Limiter distributed.Limiter

	// MaxConnections stops Serve after this many accepted connections; 0 means unbounded.
	MaxConnections int

	// MaxOpenConns bounds connections open at once; 0 means unbounded.
	MaxOpenConns int

	ReadTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Registry
	Name        string

	accepted atomic.Int64
	rejected atomic.Int64
	served   atomic.Int64
	failed   atomic.Int64
}

// Stats is a snapshot of the connection counters.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Served   int64 `json:"served"`
	Failed   int64 `json:"failed"`
}

// Route maps a request line to the status line and file to answer with.
func Route(requestLine string) (status, filename string) {
	if requestLine == indexRequestLine {
		return statusOK, indexFile
	}
	return statusNotFound, notFoundFile
}

// Response formats a status line and body.
func Response(status string, contents []byte) []byte {
	header := status + "\r\nContent-Length: " + strconv.Itoa(len(contents)) + "\r\n\r\n"
	return append([]byte(header), contents...)
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) name() string {
	if s.Name == "" {
		return "ruginx"
	}
	return s.Name
}

// ListenAndServe listens on s.Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", s.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, MaxConnections is
// reached, or the pool refuses a job. ln is closed on return. Jobs already
// submitted keep running; shutting the pool down waits for them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.Pool == nil {
		return errors.New("server has no pool")
	}
	if s.MaxOpenConns > 0 {
		ln = netutil.LimitListener(ln, s.MaxOpenConns)
	}
	defer ln.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-done:
		}
	}()

	log := s.logger()
	log.Info("listening", zap.String("addr", ln.Addr().String()))

	for n := 0; s.MaxConnections == 0 || n < s.MaxConnections; n++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept failed")
		}
		s.accepted.Add(1)
		if s.Metrics != nil {
			s.Metrics.ConnectionsAccepted.WithLabelValues(s.name()).Inc()
		}

		job := threadpool.JobFunc(func() { s.HandleConn(conn) })
		if err := s.admit(ctx); errors.Is(err, rerrors.ErrRateLimited) {
			job = threadpool.JobFunc(func() { s.Reject(conn) })
		}

		if err := s.Pool.Submit(job); err != nil {
			_ = conn.Close()
			return errors.Wrap(err, "could not dispatch connection")
		}
	}

	log.Info("connection limit reached; shutting down", zap.Int("max_connections", s.MaxConnections))
	return nil
}

func (s *Server) admit(ctx context.Context) error {
	if s.Limiter != nil && !s.Limiter.Allow(ctx) {
		return rerrors.ErrRateLimited
	}
	return nil
}

// HandleConn reads one request line from conn, answers it and closes conn.
// Failures are logged and never escape the job.
func (s *Server) HandleConn(conn net.Conn) {
	defer conn.Close()
	log := s.logger().With(zap.String("remote", conn.RemoteAddr().String()))

	requestLine, err := s.readRequestLine(conn)
	if err != nil {
		s.failed.Add(1)
		log.Warn("could not read request line", zap.Error(err), zap.Bool("retryable", rerrors.IsRetryable(err)))
		return
	}

	status, filename := Route(requestLine)
	contents, err := os.ReadFile(filepath.Join(s.Root, filename))
	if err != nil {
		s.failed.Add(1)
		log.Error("could not read response body", zap.String("file", filename), zap.Error(err))
		return
	}

	if err := s.write(conn, status, contents); err != nil {
		s.failed.Add(1)
		log.Warn("could not write response", zap.Error(err))
		return
	}
	s.served.Add(1)
	log.Debug("served", zap.String("request", requestLine), zap.String("status", status))
}

// Reject consumes the request line, answers conn with 429 and closes it.
// Closing with unread input would reset the connection before the client
// reads the reply.
func (s *Server) Reject(conn net.Conn) {
	defer conn.Close()
	s.rejected.Add(1)
	if s.Metrics != nil {
		s.Metrics.ConnectionsRejected.WithLabelValues(s.name()).Inc()
	}
	log := s.logger().With(zap.String("remote", conn.RemoteAddr().String()), zap.Error(rerrors.ErrRateLimited))

	if _, err := s.readRequestLine(conn); err != nil {
		log.Debug("rejecting without a request line", zap.NamedError("read_error", err))
	}
	if err := s.write(conn, statusTooManyRequests, nil); err != nil {
		s.failed.Add(1)
		log.Warn("could not write rejection", zap.NamedError("write_error", err))
		return
	}
	log.Debug("rejected")
}

// readRequestLine reads one line, honouring ReadTimeout. A final line
// without a newline still counts.
func (s *Server) readRequestLine(conn net.Conn) (string, error) {
	if s.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return "", rerrors.NewOperationError("server", "read", rerrors.ErrTimeout).
				WithContext("no request line within " + s.ReadTimeout.String())
		}
		return "", rerrors.NewOperationError("server", "read", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// write sends one reply. Callers own the connection counters.
func (s *Server) write(conn net.Conn, status string, contents []byte) error {
	if _, err := conn.Write(Response(status, contents)); err != nil {
		return errors.Wrap(err, "write failed")
	}
	if s.Metrics != nil {
		s.Metrics.Responses.WithLabelValues(s.name(), statusCode(status)).Inc()
	}
	return nil
}

// statusCode extracts "200" from "HTTP/1.1 200 OK".
func statusCode(status string) string {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return "unknown"
	}
	return fields[1]
}

// Stats returns the connection counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Served:   s.served.Load(),
		Failed:   s.failed.Load(),
	}
}
