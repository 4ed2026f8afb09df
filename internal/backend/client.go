package backend

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/angeloszaimis/auth-proxy/internal/backend"

// ErrUpstreamTransport marks failures where no upstream response was obtained.
var ErrUpstreamTransport = errors.New("upstream transport error")

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOptions configures the outbound client's transport.
// Zero durations leave the corresponding timeout disabled.
type ClientOptions struct {
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// NewHTTPClient returns a long-lived client for the upstream. Redirects are
// followed by the client the same way for every request.
func NewHTTPClient(opts ClientOptions) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
	if opts.TLSHandshakeTimeout > 0 {
		transport.TLSHandshakeTimeout = opts.TLSHandshakeTimeout
	}
	if opts.DialTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	return &http.Client{Transport: transport}
}

// Response is a completed upstream exchange.
type Response struct {
	StatusCode int
	Body       string
}

// TransportError is returned by Fetch when the upstream could not be reached.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrUpstreamTransport, e.Err}
}

// hopHeaders are not forwarded upstream. Accept-Encoding is left to the
// transport so that compressed bodies are decoded before being relayed.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Accept-Encoding",
	"Content-Length",
}

// Fetch issues exactly one GET for path with the given headers. Any response,
// whatever its status code, is returned as a Response; a failure to obtain one
// is returned as a *TransportError. A body that cannot be read or is not
// valid UTF-8 is replaced by the empty string.
func (b *Backend) Fetch(ctx context.Context, path string, header http.Header) (*Response, error) {
	target := b.TargetURL(path)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "backend.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", target)),
	)
	defer span.End()

	b.incrementInFlight()
	defer b.decrementInFlight()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, &TransportError{URL: target, Err: err}
	}
	copyHeaders(req.Header, header)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	res, err := b.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, &TransportError{URL: target, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil || !utf8.Valid(body) {
		body = nil
	}
	b.RecordResponse(time.Since(start))

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))

	return &Response{StatusCode: res.StatusCode, Body: string(body)}, nil
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
	for _, name := range hopHeaders {
		dst.Del(name)
	}
}
