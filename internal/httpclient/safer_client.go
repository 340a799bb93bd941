// Package httpclient provides the outbound HTTP client used for extraction,
// site suggestion and scoring calls. Target URLs partly come from callers
// (extra URLs, discovered sites), so requests to private networks are refused.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/teranos/quotesearch/errors"
)

const defaultMaxRedirects = 10

// SaferClient is an http.Client that refuses non-web schemes, embedded
// credentials and, unless disabled, loopback and private destinations.
type SaferClient struct {
	*http.Client
	allowedSchemes []string
	blockPrivateIP bool
	maxRedirects   int
}

// SaferClientOptions overrides the defaults: http and https, 10 redirects,
// private addresses blocked.
type SaferClientOptions struct {
	AllowedSchemes []string
	MaxRedirects   *int
	BlockPrivateIP *bool
}

// NewSaferClient returns a client with the default guard
func NewSaferClient(timeout time.Duration) *SaferClient {
	return NewSaferClientWithOptions(timeout, SaferClientOptions{})
}

func NewSaferClientWithOptions(timeout time.Duration, opts SaferClientOptions) *SaferClient {
	c := &SaferClient{
		Client:         &http.Client{Timeout: timeout},
		allowedSchemes: []string{"http", "https"},
		blockPrivateIP: true,
		maxRedirects:   defaultMaxRedirects,
	}
	if opts.AllowedSchemes != nil {
		c.allowedSchemes = opts.AllowedSchemes
	}
	if opts.MaxRedirects != nil {
		c.maxRedirects = *opts.MaxRedirects
	}
	if opts.BlockPrivateIP != nil {
		c.blockPrivateIP = *opts.BlockPrivateIP
	}

	c.CheckRedirect = c.checkRedirect
	if c.blockPrivateIP {
		c.Transport = &http.Transport{
			DialContext:           publicOnlyDialer(&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}),
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	return c
}

// WrapClient adopts client as is, with private addresses allowed.
// Tests use it to reach httptest servers.
func WrapClient(client *http.Client) *SaferClient {
	return &SaferClient{
		Client:         client,
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   defaultMaxRedirects,
	}
}

func (c *SaferClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= c.maxRedirects {
		return errors.Newf("stopped after %d redirects", c.maxRedirects)
	}
	return errors.Wrap(c.check(req.URL), "redirect blocked")
}

// publicOnlyDialer resolves the host before dialing so DNS names that point
// at internal addresses are refused too.
func publicOnlyDialer(d *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, errors.Wrap(err, "invalid address")
		}
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve host %q", host)
		}
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return nil, errors.Newf("private IP address blocked: %s (%s)", ip, host)
			}
		}
		return d.DialContext(ctx, network, addr)
	}
}

// ValidateURL parses raw and applies the same checks as Do
func (c *SaferClient) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.check(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *SaferClient) check(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(c.allowedSchemes, scheme) {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}
	// http://trusted.example@127.0.0.1/
	if u.User != nil || strings.Contains(u.Host, "@") {
		return errors.New("URL contains @ character")
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("URL missing hostname")
	}
	if !c.blockPrivateIP {
		return nil
	}
	if isLocalhost(host) {
		return errors.New("localhost access blocked")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return errors.Newf("private IP address blocked: %s", host)
	}
	return nil
}

// Get is http.Get behind the same checks as Do
func (c *SaferClient) Get(raw string) (*http.Response, error) {
	if _, err := c.ValidateURL(raw); err != nil {
		return nil, err
	}
	return c.Client.Get(raw)
}

// Do refuses blocked targets before sending req
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.check(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return c.Client.Do(req)
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fec0::/10"),
	netip.MustParsePrefix("ff00::/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::/128"),
}

func isPrivateIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" || host == "localhost.localdomain" || strings.HasSuffix(host, ".localhost")
}
