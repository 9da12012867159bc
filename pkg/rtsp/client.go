package rtsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rtspgrab/rtspgrab/pkg/core"
	"github.com/rtspgrab/rtspgrab/pkg/tcp"
)

const (
	ProtoRTSP      = "RTSP/1.0"
	MethodOptions  = "OPTIONS"
	MethodDescribe = "DESCRIBE"
	MethodSetup    = "SETUP"
	MethodPlay     = "PLAY"
	MethodTeardown = "TEARDOWN"
)

const (
	StatusOK           = 200
	StatusUnauthorized = 401
)

const DefaultPort = "554"

// MaxAuthAttempts - retries after 401 before giving up
const MaxAuthAttempts = 3

var Timeout = time.Second * 5

var (
	ErrConfig       = errors.New("rtsp: configuration error")
	ErrAuthAttempts = errors.New("rtsp: maximum number of authentication attempts reached")
	ErrNoTrack      = errors.New("rtsp: no track control in stream description")
	ErrNotConnected = errors.New("rtsp: not connected")
	ErrSequence     = errors.New("rtsp: response CSeq doesn't match request")
)

// StatusError - server answered with unexpected status
type StatusError struct {
	Method string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rtsp: %s %s: expected status %d, got %d", e.Method, e.URL, StatusOK, e.Status)
}

// Client - RTSP session with one camera. Operations are serialized, so CSeq
// order is always the same as the order of requests on the wire.
type Client struct {
	// Timeout for dial and for each request/response
	Timeout         time.Duration
	UserAgent       string
	MaxAuthAttempts int
	Log             zerolog.Logger

	// URL without user info, with port
	URL  *url.URL
	Host string
	IP   net.IP
	Port string

	mu       sync.Mutex
	auth     *tcp.Auth
	conn     net.Conn
	reader   *bufio.Reader
	sequence int
	session  string
	timeout  int // session timeout from server, seconds
	sdp      []byte
}

// NewClient parse URL `rtsp://[user:pass@]host[:port][/path]` and resolve
// host to IP. Both errors are ErrConfig.
func NewClient(rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if u.Scheme != "rtsp" {
		return nil, fmt.Errorf(`%w: protocol mismatch, expecting "rtsp", got %q`, ErrConfig, u.Scheme)
	}

	c := &Client{
		Timeout:         Timeout,
		MaxAuthAttempts: MaxAuthAttempts,
		Log:             zerolog.Nop(),
		Host:            u.Hostname(),
		Port:            u.Port(),
	}

	if c.Port == "" {
		c.Port = DefaultPort
	}

	addr, err := net.ResolveIPAddr("ip", c.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve %s to IP address: %v", ErrConfig, c.Host, err)
	}
	c.IP = addr.IP

	// remove UserInfo from URL
	c.auth = tcp.NewAuth(u.User)
	c.URL = &url.URL{
		Scheme:   u.Scheme,
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}

	return c, nil
}

// Open - NewClient and Connect
func Open(ctx context.Context, rawURL string) (*Client, error) {
	c, err := NewClient(rawURL)
	if err != nil {
		return nil, err
	}
	if err = c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// WithClient connects, runs f and always tears the session down,
// even if f returns error or panics.
func WithClient(ctx context.Context, rawURL string, f func(c *Client) error) (err error) {
	c, err := Open(ctx, rawURL)
	if err != nil {
		return err
	}

	defer func() {
		if err2 := c.Teardown(); err == nil {
			err = err2
		}
	}()

	return f(c)
}

func (c *Client) String() string {
	return c.URL.String()
}

// Sequence - last sent CSeq
func (c *Client) Sequence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// Session - ID from server, empty until server returns one
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SessionTimeout from `Session: id;timeout=60`, zero if server didn't send it
func (c *Client) SessionTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.timeout) * time.Second
}

// SDP - body from last DESCRIBE response
func (c *Client) SDP() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sdp
}

// Connect does nothing if current connection answers OPTIONS with 200,
// otherwise opens new connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if _, err := c.request(MethodOptions, c.URL, nil); err == nil {
			return nil
		}
		c.close()
	}

	d := net.Dialer{Timeout: c.Timeout}
	address := net.JoinHostPort(c.IP.String(), c.Port)

	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("rtsp: failed to connect to %s: %w", address, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.sequence = 0
	c.session = ""
	c.timeout = 0

	c.Log.Debug().Str("addr", address).Msg("[rtsp] connected")

	return nil
}

func (c *Client) Options() (*tcp.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.request(MethodOptions, c.URL, nil)
}

func (c *Client) Describe() (*tcp.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.describe()
}

// Setup sends DESCRIBE, gets track from SDP and sends SETUP for it with
// client_port=rtpPort-rtpPort.
func (c *Client) Setup(rtpPort int) (*tcp.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.describe()
	if err != nil {
		return nil, err
	}

	track, err := ParseTrackID(res.Body)
	if err != nil {
		return nil, err
	}

	trackURL, err := url.Parse(strings.TrimSuffix(c.URL.String(), "/") + "/" + track)
	if err != nil {
		return nil, err
	}

	header := textproto.MIMEHeader{
		"Transport": {fmt.Sprintf("RTP/AVP/UDP;unicast;client_port=%d-%d", rtpPort, rtpPort)},
	}

	return c.request(MethodSetup, trackURL, header)
}

// Play with NPT range start, "0.000-" if empty.
func (c *Client) Play(npt string) (*tcp.Response, error) {
	if npt == "" {
		npt = "0.000-"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	header := textproto.MIMEHeader{
		"Range": {`npt="` + npt + `"`},
	}

	return c.request(MethodPlay, c.URL, header)
}

// Teardown sends TEARDOWN and always closes connection, resets CSeq and
// session. Does nothing if not connected.
func (c *Client) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	_, err := c.request(MethodTeardown, c.URL, nil)

	c.close()
	c.sequence = 0
	c.session = ""
	c.timeout = 0

	return err
}

// Close - same as Teardown
func (c *Client) Close() error {
	return c.Teardown()
}

func (c *Client) describe() (*tcp.Response, error) {
	header := textproto.MIMEHeader{
		"Accept": {"application/sdp"},
	}

	res, err := c.request(MethodDescribe, c.URL, header)
	if err != nil {
		return nil, err
	}

	c.sdp = res.Body

	return res, nil
}

// request - one logical request, can be sent multiple times while server
// answers 401. Any status except 200 is an error.
func (c *Client) request(method string, u *url.URL, header textproto.MIMEHeader) (*tcp.Response, error) {
	for attempt := 0; ; attempt++ {
		res, err := c.roundTrip(method, u, header)
		if err != nil {
			return nil, err
		}

		switch res.StatusCode {
		case StatusOK:
			return res, nil

		case StatusUnauthorized:
			if attempt >= c.MaxAuthAttempts {
				return res, fmt.Errorf("%w: %s %s", ErrAuthAttempts, method, u)
			}

			c.auth.Read(res)

			c.Log.Debug().Str("url", u.String()).Int("attempt", attempt+1).
				Uint8("auth", c.auth.Method).Msg("[rtsp] unauthorized")

			continue
		}

		return res, &StatusError{Method: method, URL: u.String(), Status: res.StatusCode}
	}
}

// roundTrip - one request on the wire, with fresh CSeq, Session and
// Authorization headers
func (c *Client) roundTrip(method string, u *url.URL, header textproto.MIMEHeader) (*tcp.Response, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	req := &tcp.Request{
		Method: method,
		URL:    u,
		Proto:  ProtoRTSP,
		Header: make(textproto.MIMEHeader, len(header)+4),
	}

	for k, v := range header {
		req.Header[k] = v
	}

	if err := c.auth.Write(req); err != nil {
		return nil, fmt.Errorf("%w: failed to process authentication: %w", ErrConfig, err)
	}

	if c.session != "" {
		req.Header.Set("Session", c.session)
	}

	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	c.sequence++
	req.Header.Set("CSeq", strconv.Itoa(c.sequence))

	c.Log.Trace().Msgf("[rtsp] client request:\n%s", req)

	res, err := c.exchange(req)
	if err != nil {
		// connection is out of sync after any transport error
		c.close()
		return nil, err
	}

	c.Log.Trace().Msgf("[rtsp] client response:\n%s", res)

	if c.session == "" {
		// Session: 7116520596809429228
		// Session: 216525287999;timeout=60
		if s := res.Header.Get("Session"); s != "" {
			if i := strings.IndexByte(s, ';'); i > 0 {
				c.timeout = core.Atoi(core.Between(s[i:]+";", "timeout=", ";"))
				s = s[:i]
			}
			c.session = strings.TrimSpace(s)
		}
	}

	return res, nil
}

func (c *Client) exchange(req *tcp.Request) (*tcp.Response, error) {
	if c.Timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			return nil, err
		}
	}

	if err := req.Write(c.conn); err != nil {
		return nil, err
	}

	res, err := tcp.ReadResponse(c.reader)
	if err != nil {
		return nil, err
	}

	if cseq := res.Header.Get("CSeq"); cseq != "" && cseq != req.Header.Get("CSeq") {
		return nil, fmt.Errorf("%w: got %s, expected %s", ErrSequence, cseq, req.Header.Get("CSeq"))
	}

	return res, nil
}

func (c *Client) close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.Log.Debug().Err(err).Msg("[rtsp] close")
	}
	c.conn = nil
	c.reader = nil
}
