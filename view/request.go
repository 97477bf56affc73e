package view

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	httpHeaderContentType = "Content-Type"
	httpHeaderAccept      = "Accept"

	httpContentTypeApplicationJson = "application/json"
	httpContentTypeTextHtml        = "text/html"
)

// Request is the host-neutral view of an inbound HTTP request.
// Hosts build it from their own request type and must not modify it while it is being handled.
type Request struct {
	Method     string
	Header     http.Header
	Query      url.Values
	Body       []byte
	RemoteAddr string
}

// NewRequest builds a Request from plain header and query maps as most serverless
// hosts deliver them. Header keys are canonicalized so lookups are case-insensitive.
func NewRequest(method string, header map[string]string, query map[string]string, body []byte) *Request {
	r := &Request{
		Method: strings.ToUpper(method),
		Header: make(http.Header, len(header)),
		Query:  make(url.Values, len(query)),
		Body:   body,
	}

	for key, value := range header {
		r.Header.Set(key, value)
	}

	for key, value := range query {
		r.Query.Set(key, value)
	}

	return r
}

func (r *Request) header(key string) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(key)
}

func (r *Request) isJSON() bool {
	return strings.Contains(r.header(httpHeaderContentType), httpContentTypeApplicationJson)
}

// acceptsHTML reports whether the client prefers an HTML page, e.g. a browser tab.
func (r *Request) acceptsHTML() bool {
	accept := r.header(httpHeaderAccept)
	return strings.Contains(accept, httpContentTypeTextHtml) || strings.Contains(accept, "*/*")
}
