// Package request orchestrates rate-limited, optionally signed HTTP requests
// for venue drivers. Drivers supply a Generate closure building the request
// item; the closure runs after rate-limit capacity is acquired so nonces and
// timestamps are fresh at send time.
package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unifex/unifex/log"
	"github.com/unifex/unifex/metrics"
)

// Transport failure kinds. Drivers and callers resolve these with errors.Is.
var (
	// ErrNetwork is a transport-level failure before or during the exchange
	// of the request
	ErrNetwork = errors.New("network error")
	// ErrRequestTimeout is a request that exceeded its deadline
	ErrRequestTimeout = errors.New("request timed out")
	// ErrCircuitOpen is returned while the breaker holds the venue dark
	ErrCircuitOpen = errors.New("circuit breaker open")
)

var (
	errRequestSystemIsNil   = errors.New("request system is nil")
	errRequestFunctionIsNil = errors.New("request function is nil")
	errRequestItemNil       = errors.New("request item is nil")
	errInvalidPath          = errors.New("invalid path")
	errMaxRequestJobs       = errors.New("max request jobs reached")
)

const (
	defaultTimeout = 15 * time.Second
	maxRequestJobs = 50
	drainLimit     = 1 << 20
	userAgent      = "User-Agent"
)

// Generate is a closure that builds a request item. It is re-evaluated for
// every send so signature material reflects the actual send time.
type Generate func() (*Item, error)

// Item carries all fields for an individual HTTP exchange
type Item struct {
	Method         string
	Path           string
	Headers        map[string]string
	Body           io.Reader
	Result         interface{}
	AuthRequest    bool
	Verbose        bool
	HeaderResponse *http.Header
}

// HTTPError carries a non-success HTTP response for the driver's error
// mapper. Status fallbacks apply when the venue body has no mappable code.
type HTTPError struct {
	Status     string
	StatusCode int
	Body       []byte
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("unsuccessful HTTP status code: %d raw response: %s", e.StatusCode, string(e.Body))
}

// Requester sends rate-limited HTTP requests for one venue
type Requester struct {
	name             string
	client           *http.Client
	limiter          *RateLimiter
	breaker          *gobreaker.CircuitBreaker
	usedWeightHeader string
	userAgent        string
	timeout          time.Duration
	jobs             int32
}

// RequesterOption configures a Requester
type RequesterOption func(*Requester)

// WithLimiter attaches a weighted rate limiter
func WithLimiter(l *RateLimiter) RequesterOption {
	return func(r *Requester) { r.limiter = l }
}

// WithTimeout overrides the default per-request timeout
func WithTimeout(d time.Duration) RequesterOption {
	return func(r *Requester) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithUserAgent sets the outbound User-Agent header
func WithUserAgent(ua string) RequesterOption {
	return func(r *Requester) { r.userAgent = ua }
}

// WithUsedWeightHeader names the response header carrying the venue's used
// rate-limit weight, reconciled into the limiter after each response
func WithUsedWeightHeader(h string) RequesterOption {
	return func(r *Requester) { r.usedWeightHeader = h }
}

// WithBreaker wraps sends in a circuit breaker. While open, requests fail
// fast with ErrCircuitOpen instead of dialing a dark venue.
func WithBreaker(settings gobreaker.Settings) RequesterOption {
	return func(r *Requester) { r.breaker = gobreaker.NewCircuitBreaker(settings) }
}

// New returns a new Requester
func New(name string, client *http.Client, opts ...RequesterOption) *Requester {
	if client == nil {
		client = new(http.Client)
	}
	r := &Requester{
		name:    name,
		client:  client,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Limiter exposes the requester's rate limiter for enable/disable toggling
func (r *Requester) Limiter() *RateLimiter {
	return r.limiter
}

// SendPayload acquires rate-limit capacity, builds the request via the
// Generate closure and performs a single HTTP exchange. Non-2xx responses
// return *HTTPError for the driver's error mapper; transport failures wrap
// ErrNetwork or ErrRequestTimeout.
func (r *Requester) SendPayload(ctx context.Context, w Weight, newRequest Generate) error {
	if r == nil {
		return errRequestSystemIsNil
	}
	if newRequest == nil {
		return errRequestFunctionIsNil
	}
	if atomic.LoadInt32(&r.jobs) >= maxRequestJobs {
		return errMaxRequestJobs
	}
	atomic.AddInt32(&r.jobs, 1)
	defer atomic.AddInt32(&r.jobs, -1)

	if r.limiter != nil {
		start := time.Now()
		if err := r.limiter.Consume(ctx, w); err != nil {
			return err
		}
		metrics.RecordLimiterWait(r.name, time.Since(start))
	}

	p, err := newRequest()
	if err != nil {
		return err
	}
	return r.doRequest(ctx, p)
}

func (r *Requester) doRequest(ctx context.Context, p *Item) error {
	if p == nil {
		return errRequestItemNil
	}
	if p.Path == "" {
		return errInvalidPath
	}

	if _, ok := ctx.Deadline(); !ok && r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.Path, p.Body)
	if err != nil {
		return err
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if r.userAgent != "" && req.Header.Get(userAgent) == "" {
		req.Header.Set(userAgent, r.userAgent)
	}

	if p.Verbose {
		log.Debugf(log.RequestSys, "%s request path: %s", r.name, p.Path)
		for k, d := range req.Header {
			log.Debugf(log.RequestSys, "%s request header [%s]: %s", r.name, k, d)
		}
		log.Debugf(log.RequestSys, "%s request type: %s", r.name, p.Method)
	}

	start := time.Now()
	resp, err := r.execute(req)
	if err != nil {
		return r.classifyTransport(ctx, err)
	}
	defer r.drainBody(resp.Body)

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	metrics.RecordRequest(r.name, resp.StatusCode, time.Since(start))

	if p.HeaderResponse != nil {
		*p.HeaderResponse = resp.Header.Clone()
	}
	if r.usedWeightHeader != "" && r.limiter != nil {
		if v := resp.Header.Get(r.usedWeightHeader); v != "" {
			var used int
			if _, convErr := fmt.Sscanf(v, "%d", &used); convErr == nil {
				r.limiter.ReportUsed(used)
			}
		}
	}

	if p.Verbose {
		log.Debugf(log.RequestSys, "%s HTTP status: %s, raw response: %s",
			r.name, resp.Status, string(contents))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode > http.StatusAccepted {
		return &HTTPError{
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
			Body:       contents,
		}
	}

	if p.Result != nil {
		if err := json.Unmarshal(contents, p.Result); err != nil {
			return fmt.Errorf("%s unmarshal response: %w", r.name, err)
		}
	}
	return nil
}

func (r *Requester) execute(req *http.Request) (*http.Response, error) {
	if r.breaker == nil {
		return r.client.Do(req)
	}
	resp, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, r.name)
		}
		return nil, err
	}
	return resp.(*http.Response), nil
}

// classifyTransport sorts a transport failure into the timeout or network
// kind, passing caller cancellation through untouched
func (r *Requester) classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, ErrCircuitOpen) {
		return err
	}
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	var uerr *url.Error
	if (errors.As(err, &uerr) && uerr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrRequestTimeout, r.name, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrNetwork, r.name, err)
}

// SetProxy sets a proxy address on the client transport
func (r *Requester) SetProxy(p *url.URL) error {
	if p == nil || p.String() == "" {
		return errors.New("no proxy URL supplied")
	}
	t, ok := r.client.Transport.(*http.Transport)
	if !ok {
		t = http.DefaultTransport.(*http.Transport).Clone()
		r.client.Transport = t
	}
	t.Proxy = http.ProxyURL(p)
	return nil
}

func (r *Requester) drainBody(body io.ReadCloser) {
	defer body.Close()
	if _, err := io.Copy(io.Discard, io.LimitReader(body, drainLimit)); err != nil {
		log.Errorf(log.RequestSys, "%s failed to drain request body %s", r.name, err)
	}
}
