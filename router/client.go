package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/pkg/contextx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HTTPConnection is a Connection to a remote NewHTTPHandler endpoint.
type HTTPConnection struct {
	baseURL string
	client  *http.Client
	headers http.Header
}

type HTTPOption func(*HTTPConnection)

// WithBearerToken authenticates every call as the service principal the
// remote endpoint expects.
func WithBearerToken(token string) HTTPOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithHeader sets a static header on every call, e.g. trusted identity
// headers behind a proxy.
func WithHeader(key, value string) HTTPOption {
	return func(c *HTTPConnection) { c.headers.Set(key, value) }
}

func NewHTTPConnection(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPConnection {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &HTTPConnection{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPConnection) Create(ctx context.Context, req CreateRequest) (Response, error) {
	return c.do(ctx, req.ResourcePath, nil, req.Content)
}

func (c *HTTPConnection) Action(ctx context.Context, req ActionRequest) (Response, error) {
	return c.do(ctx, req.ResourcePath, url.Values{actionParam: {req.Action}}, req.Content)
}

func (c *HTTPConnection) do(ctx context.Context, path string, query url.Values, content json.RawMessage) (Response, error) {
	target := c.baseURL + "/" + normalize(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(content))
	if err != nil {
		return Response{}, NewInternalError(fmt.Errorf("router: failed to build request: %w", err))
	}
	for k, v := range c.headers {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if txID, ok := contextx.LookupTransactionID(ctx); ok {
		httpReq.Header.Set(contextx.HeaderTransactionID, txID)
	}
	if tid := contextx.GetTraceID(ctx); tid != "untriaged" {
		httpReq.Header.Set(contextx.HeaderTraceID, tid)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, NewUnavailable("router: remote endpoint unreachable", err)
	}
	defer httpResp.Body.Close()

	var env response.RawEnvelope
	if err := json.NewDecoder(httpResp.Body).Decode(&env); err != nil {
		cause := fmt.Errorf("router: undecodable response envelope (status %d): %w", httpResp.StatusCode, err)
		if httpResp.StatusCode >= http.StatusBadRequest {
			return Response{}, NewResourceError(httpResp.StatusCode, http.StatusText(httpResp.StatusCode), cause)
		}
		return Response{}, NewInternalError(cause)
	}

	if !env.Success || httpResp.StatusCode >= http.StatusBadRequest {
		rerr := NewResourceError(httpResp.StatusCode, http.StatusText(httpResp.StatusCode), nil)
		if env.Error != nil {
			rerr.Reason = env.Error.Code
			rerr.Message = env.Error.Message
		}
		return Response{}, rerr
	}

	var resp Response
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			return Response{}, NewInternalError(fmt.Errorf("router: undecodable response data: %w", err))
		}
	}
	return resp, nil
}
