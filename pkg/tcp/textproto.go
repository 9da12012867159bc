package tcp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const EndLine = "\r\n"
const HeaderEnd = EndLine + EndLine

// MaxHeaderSize limits accumulated headers, so a peer that never sends
// the terminator can't grow the buffer forever.
const MaxHeaderSize = 64 * 1024

var (
	ErrMalformed  = errors.New("tcp: malformed message")
	ErrIncomplete = errors.New("tcp: header terminator not received")
	ErrConnClosed = errors.New("tcp: connection closed before end of headers")
)

// Response like http.Response, but with any proto
type Response struct {
	Status     string
	StatusCode int
	Proto      string
	Header     textproto.MIMEHeader
	Body       []byte
	Request    *Request
}

func (r Response) String() string {
	s := r.Proto + " " + r.Status + EndLine
	s += headerString(r.Header)
	s += EndLine
	if r.Body != nil {
		s += string(r.Body)
	}
	return s
}

func (r *Response) Write(w io.Writer) (err error) {
	_, err = w.Write([]byte(r.String()))
	return
}

// ParseResponse splits raw message once on the header terminator.
// Returns ErrIncomplete when the terminator is not in b yet.
func ParseResponse(b []byte) (*Response, error) {
	i := bytes.Index(b, []byte(HeaderEnd))
	if i < 0 {
		return nil, ErrIncomplete
	}

	lines := splitLines(b[:i])

	// RTSP/1.0 200 OK
	ss := strings.SplitN(strings.TrimSpace(lines[0]), " ", 3)
	if len(ss) < 2 {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformed, lines[0])
	}

	res := &Response{Proto: ss[0], Status: ss[1]}
	if len(ss) == 3 {
		res.Status += " " + ss[2]
	}

	var err error
	if res.StatusCode, err = strconv.Atoi(ss[1]); err != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformed, ss[1])
	}

	if res.Header, err = parseHeader(lines[1:]); err != nil {
		return nil, err
	}

	res.Body = bodyBytes(b[i+len(HeaderEnd):], res.Header)

	return res, nil
}

// ReadResponse accumulates data until the header terminator and reads the
// body if the response has Content-Length.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	head, err := readHead(r)
	if err != nil {
		return nil, err
	}

	res, err := ParseResponse(head)
	if err != nil {
		return nil, err
	}

	if res.Body, err = readBody(r, res.Header); err != nil {
		return nil, err
	}

	return res, nil
}

// Request like http.Request, but with any proto
type Request struct {
	Method string
	URL    *url.URL
	Proto  string
	Header textproto.MIMEHeader
	Body   []byte
}

// String returns `METHOD SP uri SP proto` followed by headers and a blank line.
func (r *Request) String() string {
	s := r.Method + " " + r.URL.String() + " " + r.Proto + EndLine
	s += headerString(r.Header)
	s += EndLine
	if r.Body != nil {
		s += string(r.Body)
	}
	return s
}

func (r *Request) Write(w io.Writer) (err error) {
	_, err = w.Write([]byte(r.String()))
	return
}

func ReadRequest(r *bufio.Reader) (*Request, error) {
	head, err := readHead(r)
	if err != nil {
		return nil, err
	}

	lines := splitLines(head[:len(head)-len(HeaderEnd)])

	ss := strings.SplitN(lines[0], " ", 3)
	if len(ss) != 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformed, lines[0])
	}

	req := &Request{
		Method: ss[0],
		Proto:  ss[2],
	}

	if req.URL, err = url.Parse(ss[1]); err != nil {
		return nil, err
	}

	if req.Header, err = parseHeader(lines[1:]); err != nil {
		return nil, err
	}

	if req.Body, err = readBody(r, req.Header); err != nil {
		return nil, err
	}

	return req, nil
}

// readHead reads line by line until the accumulated data ends with the
// header terminator. Never reads past the terminator.
func readHead(r *bufio.Reader) ([]byte, error) {
	var buf []byte

	for {
		line, err := r.ReadSlice('\n')
		buf = append(buf, line...)

		switch err {
		case nil:
			if bytes.HasSuffix(buf, []byte(HeaderEnd)) {
				return buf, nil
			}
			// skip empty lines between messages
			if len(buf) == len(EndLine) && string(buf) == EndLine {
				buf = buf[:0]
			}
		case bufio.ErrBufferFull:
		case io.EOF:
			return nil, fmt.Errorf("%w: got %d bytes", ErrConnClosed, len(buf))
		default:
			return nil, err
		}

		if len(buf) > MaxHeaderSize {
			return nil, fmt.Errorf("%w: header too large", ErrMalformed)
		}
	}
}

func readBody(r *bufio.Reader, header textproto.MIMEHeader) ([]byte, error) {
	val := header.Get("Content-Length")
	if val == "" {
		return nil, nil
	}

	size, err := strconv.Atoi(val)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: content length %q", ErrMalformed, val)
	}

	body := make([]byte, size)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// bodyBytes copy body after terminator, limited by Content-Length if any
func bodyBytes(b []byte, header textproto.MIMEHeader) []byte {
	if val := header.Get("Content-Length"); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size >= 0 && size < len(b) {
			b = b[:size]
		}
	}
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func splitLines(b []byte) []string {
	lines := strings.Split(string(b), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// parseHeader keeps only the first value for duplicate keys.
// Lines starting with space or tab continue the previous value.
func parseHeader(lines []string) (textproto.MIMEHeader, error) {
	header := textproto.MIMEHeader{}

	var last string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if last != "" {
				header[last][0] += " " + strings.TrimSpace(line)
			}
			continue
		}

		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformed, line)
		}

		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(k))
		if _, ok = header[key]; ok {
			last = ""
			continue
		}

		header[key] = []string{strings.TrimSpace(v)}
		last = key
	}

	return header, nil
}

func headerString(header textproto.MIMEHeader) (s string) {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if v := header[k]; len(v) > 0 {
			s += k + ": " + v[0] + EndLine
		}
	}
	return
}
