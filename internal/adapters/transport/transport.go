// Package transport implements C1: a session to "host/device" that sends
// opaque text commands and, for commands ending in "?", returns the
// instrument's reply. Grounded on original_source/backend/app/services/
// vxi11_client.py's TCPVXI11Client (raw TCP, newline-terminated commands,
// best-effort line read) and VXI11RPCClient's lock/unlock dance around each
// operation, reworked into the teacher's idiom: a long-lived pooled session
// per address instead of a dial-per-call client.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/kbralten/vxi-dash/internal/ports"
)

// Dialer abstracts net.Dial for testability.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// TCPTransport opens newline-delimited text sessions over TCP. It is safe
// for concurrent use; each Open call returns an independent Session bound
// to its own connection.
type TCPTransport struct {
	dialer  Dialer
	timeout time.Duration
}

// New builds a TCPTransport with the given per-call deadline (§5
// "Cancellation and timeouts", default 2s per spec.md §5 if timeout<=0).
func New(timeout time.Duration) *TCPTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPTransport{dialer: netDialer{}, timeout: timeout}
}

// NewWithDialer is used by tests to substitute a fake Dialer.
func NewWithDialer(d Dialer, timeout time.Duration) *TCPTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPTransport{dialer: d, timeout: timeout}
}

// ParseAddress splits "host/device" or "host:port/device" into the dial
// target and the device identifier, per spec.md §1/§3 address format.
func ParseAddress(address string) (dialTarget, device string) {
	host, dev, hasDevice := strings.Cut(address, "/")
	if !hasDevice {
		return hostWithDefaultPort(host), ""
	}
	return hostWithDefaultPort(host), dev
}

func hostWithDefaultPort(host string) string {
	if strings.Contains(host, ":") {
		return host
	}
	return host + ":5025" // common SCPI-over-TCP raw socket port
}

func (t *TCPTransport) Open(ctx context.Context, address string) (ports.Session, error) {
	dialTarget, device := ParseAddress(address)

	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, err := t.dialer.DialContext(dialCtx, "tcp", dialTarget)
	if err != nil {
		return nil, domain.NewTransportError(domain.TransportUnreachable, address, err)
	}

	return &tcpSession{
		address: address,
		device:  device,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: t.timeout,
	}, nil
}

type tcpSession struct {
	address string
	device  string
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *tcpSession) Address() string { return s.address }

// Query performs the acquire-lock → send → wait-reply → release-lock dance
// required by §4.1 for peers that need it; here the session's own mutex
// plays that role (one concurrent request per session, §5).
func (s *tcpSession) Query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", domain.NewTransportError(domain.TransportUnreachable, s.address, errors.New("session closed"))
	}

	if err := s.send(ctx, cmd); err != nil {
		return "", err
	}

	deadline := s.deadline(ctx)
	_ = s.conn.SetReadDeadline(deadline)

	line, err := s.reader.ReadString('\n')
	if err != nil {
		if isTimeout(err) {
			return "", domain.NewTransportError(domain.TransportTimeout, s.address, err)
		}
		return "", domain.NewTransportError(domain.TransportProtocolError, s.address, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *tcpSession) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.NewTransportError(domain.TransportUnreachable, s.address, errors.New("session closed"))
	}
	return s.send(ctx, cmd)
}

func (s *tcpSession) send(ctx context.Context, cmd string) error {
	deadline := s.deadline(ctx)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return domain.NewTransportError(domain.TransportUnreachable, s.address, err)
	}
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if _, err := s.conn.Write([]byte(cmd)); err != nil {
		if isTimeout(err) {
			return domain.NewTransportError(domain.TransportTimeout, s.address, err)
		}
		return domain.NewTransportError(domain.TransportUnreachable, s.address, err)
	}
	return nil
}

func (s *tcpSession) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func (s *tcpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ParseNumeric extracts the first real number (optionally signed, optionally
// scientific notation) from a raw instrument response, mirroring
// vxi11_client's best-effort regex parse, but returns ok=false rather than
// a bogus 0.0 so the caller can record it as a parse error (§4.4 step 3:
// "value = null if parsing fails").
func ParseNumeric(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	start := -1
	end := -1
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if isNumericStart(c) {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, false
	}
	i := start
	seenDigit := false
	seenDot := false
	seenExp := false
	for ; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == '+' || c == '-') && i == start:
			// leading sign, fine
		case (c == 'e' || c == 'E') && !seenExp && seenDigit:
			seenExp = true
			// allow an immediately following sign
			if i+1 < len(raw) && (raw[i+1] == '+' || raw[i+1] == '-') {
				i++
			}
		default:
			end = i
			goto done
		}
	}
	end = i
done:
	if !seenDigit {
		return 0, false
	}
	var v float64
	n, err := fmt.Sscanf(raw[start:end], "%g", &v)
	if err != nil || n != 1 {
		return 0, false
	}
	return v, true
}

func isNumericStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}
