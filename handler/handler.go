// Package handler exposes the chat service over HTTP, both as an API Gateway
// Lambda handler and as a plain net/http handler for local runs.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"support-agent/internal/logger"
	"support-agent/internal/usecase"
)

// ChatUseCase is the service surface the routes call into.
type ChatUseCase interface {
	Respond(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Greeting(ctx context.Context, businessID string) usecase.Greeting
	BusinessInfo(ctx context.Context, businessID string) (usecase.BusinessInfo, error)
	Diagnose(ctx context.Context, businessID, query string) (usecase.Diagnosis, error)
	ClearBusiness(businessID string) error
	ClearAll()
	Stats() usecase.Stats
}

type Handler struct {
	uc       ChatUseCase
	validate *validator.Validate
	log      *zap.Logger
	devMode  bool
	now      func() time.Time
	router   chi.Router
}

type Option func(*Handler)

func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// WithDevelopmentMode exposes internal error detail in responses.
func WithDevelopmentMode(on bool) Option {
	return func(h *Handler) {
		h.devMode = on
	}
}

func NewHandler(uc ChatUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{
		uc:       uc,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logger.OrNop(h.log)
	h.router = h.Routes()
	return h, nil
}

// ServeHTTP routes plain HTTP requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Handle serves an API Gateway proxy event through the same routes.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := toHTTPRequest(ctx, event)
	if err != nil {
		h.log.Warn("malformed proxy event", zap.Error(err))
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"INVALID_INPUT","reason":"malformed_request"}`,
		}, nil
	}

	buf := newResponseBuffer()
	h.router.ServeHTTP(buf, req)
	return buf.toProxyResponse(), nil
}

func toHTTPRequest(ctx context.Context, event events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}

	query := url.Values{}
	for k, vs := range event.MultiValueQueryStringParameters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, v := range event.QueryStringParameters {
		if !query.Has(k) {
			query.Set(k, v)
		}
	}

	path := event.Path
	if path == "" {
		path = "/"
	}
	target := (&url.URL{Path: path, RawQuery: query.Encode()}).RequestURI()
	method := strings.ToUpper(event.HTTPMethod)
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range event.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if ip := event.RequestContext.Identity.SourceIP; ip != "" {
		req.RemoteAddr = ip
	}
	return req, nil
}

// responseBuffer collects a routed response for the proxy integration.
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: http.Header{}}
}

func (b *responseBuffer) Header() http.Header { return b.header }

func (b *responseBuffer) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *responseBuffer) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *responseBuffer) toProxyResponse() events.APIGatewayProxyResponse {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(b.header))
	for k, vs := range b.header {
		if len(vs) > 0 {
			headers[k] = strings.Join(vs, ",")
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       b.body.String(),
	}
}
