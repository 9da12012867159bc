package tcp

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rtspgrab/rtspgrab/pkg/core"
)

var ErrNoCredentials = errors.New("tcp: credentials not provided")

const (
	AuthNone byte = iota
	AuthBasic
	AuthDigest
)

// Challenge from `WWW-Authenticate: Digest realm="...", nonce="..."`
type Challenge struct {
	Realm string
	Nonce string
}

// ParseChallenge returns false if header is not a Digest challenge.
func ParseChallenge(header string) (Challenge, bool) {
	if !strings.HasPrefix(header, "Digest") {
		return Challenge{}, false
	}
	return Challenge{
		Realm: core.Between(header, `realm="`, `"`),
		Nonce: core.Between(header, `nonce="`, `"`),
	}, true
}

// BasicHeader returns `Basic base64(user:pass)`.
func BasicHeader(user, pass string) (string, error) {
	if user == "" {
		return "", ErrNoCredentials
	}
	return "Basic " + B64(user, pass), nil
}

// DigestResponse as of RFC 2069 (without qop):
// MD5(MD5(user:realm:pass):nonce:MD5(method:uri))
func DigestResponse(user, pass, realm, nonce, method, uri string) string {
	h1 := HexMD5(user, realm, pass)
	h2 := HexMD5(method, uri)
	return HexMD5(h1, nonce, h2)
}

func DigestHeader(user, pass, realm, nonce, method, uri string) (string, error) {
	switch {
	case user == "":
		return "", ErrNoCredentials
	case realm == "", nonce == "":
		return "", fmt.Errorf("tcp: digest challenge without realm or nonce")
	case method == "", uri == "":
		return "", fmt.Errorf("tcp: digest without method or uri")
	}

	response := DigestResponse(user, pass, realm, nonce, method, uri)

	return fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		user, realm, nonce, uri, response,
	), nil
}

// Auth holds credentials and the strategy selected by the last challenge.
type Auth struct {
	Method    byte
	Challenge Challenge

	user string
	pass string
}

func NewAuth(user *url.Userinfo) *Auth {
	a := new(Auth)
	if user != nil {
		a.user = user.Username()
		a.pass, _ = user.Password()
	}
	return a
}

// Read selects Digest if the 401 response has a Digest challenge, Basic otherwise.
func (a *Auth) Read(res *Response) {
	if challenge, ok := ParseChallenge(res.Header.Get("WWW-Authenticate")); ok {
		a.Method = AuthDigest
		a.Challenge = challenge
	} else {
		a.Method = AuthBasic
		a.Challenge = Challenge{}
	}
}

// Header returns Authorization value for request, empty if no strategy selected yet.
func (a *Auth) Header(method, uri string) (string, error) {
	switch a.Method {
	case AuthBasic:
		return BasicHeader(a.user, a.pass)
	case AuthDigest:
		return DigestHeader(a.user, a.pass, a.Challenge.Realm, a.Challenge.Nonce, method, uri)
	}
	return "", nil
}

// Write sets Authorization header for request
func (a *Auth) Write(req *Request) error {
	if a == nil {
		return nil
	}

	// important to use String except RequestURI
	header, err := a.Header(req.Method, req.URL.String())
	if err != nil {
		return err
	}

	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return nil
}

func HexMD5(s ...string) string {
	b := md5.Sum([]byte(strings.Join(s, ":")))
	return hex.EncodeToString(b[:])
}

func B64(s ...string) string {
	b := []byte(strings.Join(s, ":"))
	return base64.StdEncoding.EncodeToString(b)
}
