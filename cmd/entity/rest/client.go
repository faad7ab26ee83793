package rest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	gocache "github.com/patrickmn/go-cache"

	prof "github.com/openbraininstitute/entitykit/cmd/entity/config/profiles"
	"github.com/openbraininstitute/entitykit/pkg/forge"
	"github.com/openbraininstitute/entitykit/pkg/utils/logger"
	"github.com/openbraininstitute/entitykit/pkg/utils/retry"
)

const (
	DefaultCacheTTL = 5 * time.Minute

	// page size of listing resources
	pageSize = 100
)

// client is a forge.Store backed by Nexus delta REST API.
type client struct {
	httpclient *http.Client
	api        string
	org        string
	project    string
	token      string
	context    string
	schemas    map[string]string

	cache   *gocache.Cache
	backoff func() retry.Backoff
	logger  *log.Logger
}

var _ forge.Store = &client{}

type option struct {
	httpclient *http.Client
	cacheTTL   time.Duration
	backoff    func() retry.Backoff
	logger     *log.Logger
}

type Option func(*option) *option

// WithHTTPClient replaces the http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *option) *option {
		o.httpclient = hc
		return o
	}
}

// WithCacheTTL sets how long retrieved resources are cached.
//
// Zero or negative duration disables the cache.
func WithCacheTTL(d time.Duration) Option {
	return func(o *option) *option {
		o.cacheTTL = d
		return o
	}
}

// WithBackoff sets the backoff for requests failed with 502, 503 or 504.
//
// b is called for each request, and should create a new Backoff.
func WithBackoff(b func() retry.Backoff) Option {
	return func(o *option) *option {
		o.backoff = b
		return o
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *option) *option {
		o.logger = l
		return o
	}
}

// create new Nexus client for Profile
//
// # Args
//
// - *prof.Profile
//
// - string: bucket, "organization/project". When empty, the bucket of the profile is used.
//
// - string: access token. When empty, requests are sent without authorization.
//
// - ...Option
//
// # Return
//
// - forge.Store: created client
//
// - error: If given profile or bucket is invalid, ErrProfileInvalid is returned.
func NewClient(p *prof.Profile, bucket string, token string, options ...Option) (forge.Store, error) {
	if err := p.Verify(); err != nil {
		return nil, err
	}
	if bucket == "" {
		bucket = p.Bucket
	}
	if bucket == "" {
		bucket = prof.DefaultBucket
	}
	if err := prof.VerifyBucket(bucket); err != nil {
		return nil, err
	}
	org, project, _ := strings.Cut(bucket, "/")

	opt := &option{
		cacheTTL: DefaultCacheTTL,
		backoff: func() retry.Backoff {
			return retry.Limit(3, retry.ExponentialBackoff(500*time.Millisecond, 2))
		},
		logger: logger.Null(),
	}
	for _, o := range options {
		opt = o(opt)
	}

	httpclient := opt.httpclient
	if httpclient == nil {
		httpclient = new(http.Client)
	}
	if p.Cert.CA != "" {
		hc, err := trustCa(httpclient, []string{p.Cert.CA})
		if err != nil {
			return nil, err
		}
		httpclient = hc
	}

	c := &client{
		httpclient: httpclient,
		api:        strings.TrimSuffix(p.Endpoint, "/"),
		org:        org,
		project:    project,
		token:      token,
		context:    p.JSONLDContext(),
		schemas:    p.Schemas,
		backoff:    opt.backoff,
		logger:     opt.logger,
	}
	if 0 < opt.cacheTTL {
		c.cache = gocache.New(opt.cacheTTL, 2*opt.cacheTTL)
	}

	return c, nil
}

// build URL with path segments.
//
// Segments are escaped, except the first one.
func (c *client) apipath(first string, segments ...string) string {
	path := []string{c.api, strings.Trim(first, "/")}
	for _, s := range segments {
		path = append(path, url.PathEscape(s))
	}
	return strings.Join(path, "/")
}

func (c *client) newRequest(ctx context.Context, method string, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// get sends a GET request.
//
// When the server responds 502, 503 or 504, it retries with backoff.
func (c *client) get(ctx context.Context, u string, accept string) (*http.Response, error) {
	return retry.Blocking(ctx, c.backoff(), func() (*http.Response, error) {
		req, err := c.newRequest(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		c.logger.Debugf("GET %s", u)
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			discard(resp)
			c.logger.Infof("GET %s: %s, retrying", u, resp.Status)
			return nil, fmt.Errorf("%w: %s", retry.ErrRetry, resp.Status)
		}
		return resp, nil
	})
}

func trustCa(hc *http.Client, cacerts []string) (*http.Client, error) {
	if len(cacerts) <= 0 {
		return hc, nil
	}

	rt := hc.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	tran, ok := rt.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("failed to add ca cert")
	}
	tran = tran.Clone()

	tcc := tran.TLSClientConfig.Clone()
	if tcc == nil {
		tcc = &tls.Config{}
	}

	rootcas := tcc.RootCAs
	if rootcas == nil {
		rootcas = x509.NewCertPool()
		tcc.RootCAs = rootcas
	}
	for _, ca := range cacerts {
		bin, err := base64.StdEncoding.DecodeString(ca)
		if err != nil {
			return nil, err
		}

		if !rootcas.AppendCertsFromPEM(bin) {
			return nil, fmt.Errorf("failed to add cert")
		}
	}

	tran.TLSClientConfig = tcc
	ret := *hc
	ret.Transport = tran
	return &ret, nil
}
