package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
)

type TokenProvider interface {
	Token() (string, error)
}

// HTTPClient is the shared transport of every collaborator client. It is
// safe for concurrent use.
type HTTPClient struct {
	client  *http.Client
	tokens  TokenProvider
	log     *slog.Logger
	baseURL url.URL
	timeout time.Duration
}

func New(address string, timeout time.Duration, tokens TokenProvider, log *slog.Logger,
) (*HTTPClient, error) {
	base, err := baseURL(address)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = model.DefaultTimeout
	}
	return &HTTPClient{
		client:  &http.Client{},
		tokens:  tokens,
		log:     log,
		baseURL: base,
		timeout: timeout,
	}, nil
}

func baseURL(address string) (url.URL, error) {
	if !strings.Contains(address, "://") {
		return url.URL{Scheme: "http", Host: address}, nil
	}
	u, err := url.Parse(address)
	if err != nil {
		return url.URL{}, fmt.Errorf("invalid service address %q: %w", address, err)
	}
	return *u, nil
}

type request struct {
	body    any
	out     any
	query   url.Values
	headers map[string]string
	method  string
	path    string
}

// response is a non-2xx answer that the caller wants to inspect itself.
type response struct {
	body       []byte
	statusCode int
}

func (c *HTTPClient) do(ctx context.Context, r request) error {
	_, err := c.send(ctx, r, nil)
	return err
}

// send performs the request. Statuses listed in accept are returned to the
// caller as a response instead of a *serviceerrs.StatusError.
func (c *HTTPClient) send(ctx context.Context, r request, accept []int) (*response, error) {
	u := c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + r.path
	u.RawQuery = r.query.Encode()

	var payload io.Reader = http.NoBody
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode the request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	tCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(tCtx, r.method, u.String(), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create the request: %w", err)
	}
	if r.body != nil {
		req.Header.Set(model.HeaderContentType, "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain a service token: %w", err)
		}
		if token != "" {
			req.Header.Set(model.HeaderAuthorization, "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, serviceerrs.NewTransportError(err)
	}
	body, err := io.ReadAll(resp.Body)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.LogAttrs(
				ctx,
				slog.LevelError,
				"failed to close the response body",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}()
	if err != nil {
		return nil, serviceerrs.NewTransportError(fmt.Errorf("failed to read the body: %w", err))
	}

	return c.handleResponse(resp.StatusCode, body, r.out, accept)
}

func (c *HTTPClient) handleResponse(status int, body []byte, out any, accept []int,
) (*response, error) {
	for _, a := range accept {
		if status == a {
			return &response{statusCode: status, body: body}, nil
		}
	}

	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		if out == nil || len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("%w: response decoding error: %v",
				serviceerrs.ErrMalformedResponse, err)
		}
		return nil, nil
	default:
		return nil, &serviceerrs.StatusError{StatusCode: status, Body: string(body)}
	}
}
