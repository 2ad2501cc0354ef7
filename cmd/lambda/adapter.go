package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

type lambdaHandler func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// newHandler adapts API Gateway proxy events to router.
func newHandler(router http.Handler, flush func(context.Context) error, log *slog.Logger) lambdaHandler {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		// the sandbox may freeze as soon as the handler returns
		defer func() {
			if err := flush(ctx); err != nil {
				log.WarnContext(ctx, "trace flush failed", slog.String("error", err.Error()))
			}
		}()

		httpReq, err := createHTTPRequest(ctx, req)
		if err != nil {
			log.ErrorContext(ctx, "error creating http request", slog.String("error", err.Error()))
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusInternalServerError,
				Body:       `{"error":"internal server error"}`,
				Headers:    map[string]string{"Content-Type": "application/json"},
			}, nil
		}

		rec := newResponseRecorder()
		router.ServeHTTP(rec, httpReq)
		return rec.toProxyResponse(), nil
	}
}

// createHTTPRequest creates an http.Request from an API Gateway event
func createHTTPRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if req.Body != "" {
		if req.IsBase64Encoded {
			raw, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(raw)
		} else {
			body = strings.NewReader(req.Body)
		}
	}

	// Determine the full request path
	path := req.Path
	for param, value := range req.PathParameters {
		path = strings.ReplaceAll(path, "{"+param+"}", value)
		path = strings.ReplaceAll(path, "{"+param+"+}", value)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod, path, body)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for param, values := range req.MultiValueQueryStringParameters {
		for _, v := range values {
			query.Add(param, v)
		}
	}
	for param, value := range req.QueryStringParameters {
		if _, ok := query[param]; !ok {
			query.Set(param, value)
		}
	}
	httpReq.URL.RawQuery = query.Encode()

	for key, values := range req.MultiValueHeaders {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, value := range req.Headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		httpReq.RemoteAddr = ip + ":0"
	}

	return httpReq, nil
}

// responseRecorder captures the router's HTTP response
type responseRecorder struct {
	header     http.Header
	body       bytes.Buffer
	statusCode int
	wrote      bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: http.Header{}, statusCode: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.body.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.wrote {
		return
	}
	r.statusCode = statusCode
	r.wrote = true
}

// toProxyResponse converts the captured response. Non-text bodies are
// base64 encoded so binary objects survive API Gateway.
func (r *responseRecorder) toProxyResponse() events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode:        r.statusCode,
		MultiValueHeaders: map[string][]string(r.header.Clone()),
	}
	if isText(r.header.Get("Content-Type")) {
		resp.Body = r.body.String()
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(r.body.Bytes())
		resp.IsBase64Encoded = true
	}
	return resp
}

func isText(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/xml",
		mt == "application/javascript",
		strings.HasSuffix(mt, "+json"),
		strings.HasSuffix(mt, "+xml"):
		return true
	}
	return false
}
