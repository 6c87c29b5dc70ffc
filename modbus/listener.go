package modbus

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Listener accepts Modbus/TCP connections and hands each one its own
// goroutine: one Accept loop, a goroutine per accepted connection, each
// reading from a minimal accumulate-dispatch loop rather than a
// channel-demultiplexed dispatcher — this engine answers synchronously
// in place, there is no client side on this port to demux responses to.
type Listener struct {
	ln     *net.TCPListener
	engine *Engine
	log    *logrus.Logger
}

// Listen binds addr (host:port, conventionally ":502" per §6) and
// returns a Listener ready to Serve.
func Listen(addr string, engine *Engine, log *logrus.Logger) (*Listener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, engine: engine, log: log}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections; it does not close connections
// already accepted. Each connection goroutine exits when its peer closes,
// a read or write fails, or Serve's context is canceled (which closes
// the connection).
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is canceled or the listener is
// closed. Each accepted connection is handled on its own goroutine;
// connection-local errors (partial reads, socket errors, peer close)
// terminate only that goroutine, per §4.4's "Connection closure, partial
// reads, and socket errors terminate that task only."
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn *net.TCPConn) {
	defer conn.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	remote := conn.RemoteAddr().String()
	if l.log != nil {
		l.log.WithField("remote", remote).Info("modbus: connection accepted")
	}

	header := make([]byte, 6)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := io.ReadFull(conn, header); err != nil {
			if l.log != nil && !errors.Is(err, io.EOF) {
				l.log.WithField("remote", remote).WithError(err).Warn("modbus: read error")
			}
			return
		}

		length := getWord(header, offLength)
		if length < 1 || length > 253 {
			if l.log != nil {
				l.log.WithField("remote", remote).Warn("modbus: frame length out of range, closing")
			}
			return
		}

		rest := make([]byte, length)
		if _, err := io.ReadFull(conn, rest); err != nil {
			if l.log != nil {
				l.log.WithField("remote", remote).WithError(err).Warn("modbus: read error")
			}
			return
		}

		adu := append(header, rest...)
		if getWord(adu, offProtocolID) != 0 {
			if l.log != nil {
				l.log.WithField("remote", remote).Warn("modbus: non-zero protocol id, dropping frame")
			}
			continue
		}

		reply := l.engine.Handle(adu)
		if _, err := conn.Write(reply); err != nil {
			if l.log != nil {
				l.log.WithField("remote", remote).WithError(err).Warn("modbus: write error")
			}
			return
		}
	}
}
