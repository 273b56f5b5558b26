package resilience

import (
	"context"
	"errors"
	"net"
	"time"
)

// Timeout errors. Errors returned by Client.Do match one of these with
// errors.Is when the matching timeout expired.
var (
	ErrConnectTimeout = errors.New("connect timeout")
	ErrReadTimeout    = errors.New("read timeout")
)

// timeoutError tags a low-level timeout with the phase it happened in.
type timeoutError struct {
	phase error
	err   error
}

func (e *timeoutError) Error() string   { return e.phase.Error() + ": " + e.err.Error() }
func (e *timeoutError) Unwrap() []error { return []error{e.phase, e.err} }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// DialFunc opens a network connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// dialer wraps dial so that connection setup is bounded by connectTimeout and
// each conn carries an idle read deadline.
func dialer(dial DialFunc, connectTimeout, readTimeout time.Duration) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		dctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		conn, err := dial(dctx, network, addr)
		if err != nil {
			if ctx.Err() == nil && (errors.Is(dctx.Err(), context.DeadlineExceeded) || isTimeout(err)) {
				return nil, &timeoutError{phase: ErrConnectTimeout, err: err}
			}
			return nil, err
		}
		return &deadlineConn{Conn: conn, readTimeout: readTimeout}, nil
	}
}

// deadlineConn fails a Read that waits longer than readTimeout for data.
// The deadline restarts on every Read, so a slow but steady body is allowed.
type deadlineConn struct {
	net.Conn
	readTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Read(b)
	if err != nil && isTimeout(err) {
		return n, &timeoutError{phase: ErrReadTimeout, err: err}
	}
	return n, err
}
