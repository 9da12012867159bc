package rtp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rtspgrab/rtspgrab/pkg/h264"
)

// BufferSize for one datagram read, bigger datagrams are truncated by OS
const BufferSize = 2048

// Stream receives RTP/H264 over UDP and returns depacketized NAL payloads.
type Stream struct {
	// ReadTimeout for each datagram, zero means wait forever
	ReadTimeout time.Duration
	Log         zerolog.Logger

	conn *net.UDPConn
	port int
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

// Listen binds UDP socket on port, or on a random free port if port is 0.
func Listen(port int) (*Stream, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, err
	}

	return &Stream{
		Log:  zerolog.Nop(),
		conn: conn,
		port: conn.LocalAddr().(*net.UDPAddr).Port,
		buf:  make([]byte, BufferSize),
	}, nil
}

// Port that should be sent to RTSP server in SETUP
func (s *Stream) Port() int {
	return s.port
}

// Next blocks until one datagram is received. Returns empty payload when
// the datagram can't be parsed, so one broken packet doesn't stop the stream.
// Returned slice is owned by caller.
func (s *Stream) Next() ([]byte, error) {
	return s.next(context.Background())
}

// next checks ctx after setting read deadline, so the deadline can't
// override the one set on cancel
func (s *Stream) next(ctx context.Context) ([]byte, error) {
	if s.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := s.conn.Read(s.buf)
	if err != nil {
		return nil, err
	}

	datagram, err := Parse(s.buf[:n])
	if err != nil {
		s.Log.Trace().Err(err).Int("size", n).Msg("[rtp] skip datagram")
		return nil, nil
	}

	nalu, err := h264.ParseNALU(datagram.Payload)
	if err != nil {
		s.Log.Trace().Err(err).Uint16("seq", datagram.SequenceNumber).Msg("[rtp] skip nalu")
		return nil, nil
	}

	return nalu.Payload, nil
}

// Run calls handler for every non empty payload until ctx is done, handler
// returns error or stream is closed. Read timeouts and other receive errors
// don't stop the loop.
func (s *Stream) Run(ctx context.Context, handler func(payload []byte) error) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			// unblock current Read
			_ = s.conn.SetReadDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := s.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.Log.Debug().Int("port", s.port).Msg("[rtp] read timeout")
			} else {
				s.Log.Warn().Err(err).Int("port", s.port).Msg("[rtp] read")
			}
			continue
		}

		if len(payload) == 0 {
			continue
		}

		if err = handler(payload); err != nil {
			return err
		}
	}
}

// Close is safe to call many times and from another goroutine.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
