// Package apigateway serves a view.Handler from AWS Lambda behind Amazon API Gateway.
package apigateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"

	"github.com/it512/fed/view"
)

// ProxyHandler returns a Lambda handler for REST API (payload format 1.0) proxy events.
// Request level failures are reported in the response, the returned error is always nil.
func ProxyHandler(h view.Handler) func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		r, err := FromProxyRequest(event)
		if err != nil {
			return ToProxyResponse(badRequest(err)), nil
		}

		return ToProxyResponse(h.Handle(ctx, r)), nil
	}
}

// HTTPAPIHandler returns a Lambda handler for HTTP API (payload format 2.0) events.
func HTTPAPIHandler(h view.Handler) func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		r, err := FromHTTPAPIRequest(event)
		if err != nil {
			return ToHTTPAPIResponse(badRequest(err)), nil
		}

		return ToHTTPAPIResponse(h.Handle(ctx, r)), nil
	}
}

// FromProxyRequest converts a REST API proxy event. Multi-value headers and parameters
// take precedence over their single-value counterparts.
func FromProxyRequest(event events.APIGatewayProxyRequest) (*view.Request, error) {
	body, err := decodeBody(event.Body, event.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	r := &view.Request{
		Method:     strings.ToUpper(event.HTTPMethod),
		Header:     make(http.Header),
		Query:      make(url.Values),
		Body:       body,
		RemoteAddr: event.RequestContext.Identity.SourceIP,
	}

	for key, value := range event.Headers {
		r.Header.Set(key, value)
	}
	for key, values := range event.MultiValueHeaders {
		r.Header.Del(key)
		for _, value := range values {
			r.Header.Add(key, value)
		}
	}

	for key, value := range event.QueryStringParameters {
		r.Query.Set(key, value)
	}
	for key, values := range event.MultiValueQueryStringParameters {
		r.Query[key] = append([]string(nil), values...)
	}

	return r, nil
}

// FromHTTPAPIRequest converts an HTTP API event. API Gateway joins repeated headers
// and parameters with commas, so the raw query string is parsed when it is present.
func FromHTTPAPIRequest(event events.APIGatewayV2HTTPRequest) (*view.Request, error) {
	body, err := decodeBody(event.Body, event.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	r := &view.Request{
		Method:     strings.ToUpper(event.RequestContext.HTTP.Method),
		Header:     make(http.Header),
		Query:      make(url.Values),
		Body:       body,
		RemoteAddr: event.RequestContext.HTTP.SourceIP,
	}

	for key, value := range event.Headers {
		r.Header.Set(key, value)
	}
	if len(event.Cookies) > 0 {
		r.Header.Set("Cookie", strings.Join(event.Cookies, "; "))
	}

	if event.RawQueryString != "" {
		query, err := url.ParseQuery(event.RawQueryString)
		if err != nil {
			return nil, &queryStringError{err: err}
		}
		r.Query = query
	} else {
		for key, value := range event.QueryStringParameters {
			r.Query.Set(key, value)
		}
	}

	return r, nil
}

func ToProxyResponse(resp *view.Response) events.APIGatewayProxyResponse {
	body, isBase64 := encodeBody(resp.Body)

	return events.APIGatewayProxyResponse{
		StatusCode:        resp.StatusCode,
		Headers:           singleValueHeaders(resp.Header),
		MultiValueHeaders: multiValueHeaders(resp.Header),
		Body:              body,
		IsBase64Encoded:   isBase64,
	}
}

func ToHTTPAPIResponse(resp *view.Response) events.APIGatewayV2HTTPResponse {
	body, isBase64 := encodeBody(resp.Body)

	return events.APIGatewayV2HTTPResponse{
		StatusCode:        resp.StatusCode,
		Headers:           singleValueHeaders(resp.Header),
		MultiValueHeaders: multiValueHeaders(resp.Header),
		Body:              body,
		IsBase64Encoded:   isBase64,
	}
}

type queryStringError struct {
	err error
}

func (e *queryStringError) Error() string {
	return "parse query string: " + e.err.Error()
}

func (e *queryStringError) Unwrap() error {
	return e.err
}

func badRequest(err error) *view.Response {
	var queryErr *queryStringError
	if errors.As(err, &queryErr) {
		return view.ErrorResponse(http.StatusBadRequest, view.CodeBadRequest, "Unable to parse query string")
	}
	return view.ErrorResponse(http.StatusBadRequest, view.CodeBadRequest, "Unable to decode request body")
}

func decodeBody(body string, isBase64 bool) ([]byte, error) {
	if !isBase64 {
		return []byte(body), nil
	}
	return base64.StdEncoding.DecodeString(body)
}

func encodeBody(body []byte) (string, bool) {
	if utf8.Valid(body) {
		return string(body), false
	}
	return base64.StdEncoding.EncodeToString(body), true
}

// singleValueHeaders keeps the last value of every header; API Gateway merges
// Headers and MultiValueHeaders, so both carry the same data.
func singleValueHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}

	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[key] = values[len(values)-1]
	}
	return out
}

func multiValueHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}

	out := make(map[string][]string, len(header))
	for key, values := range header {
		out[key] = append([]string(nil), values...)
	}
	return out
}
