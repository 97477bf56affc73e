package main

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/it512/fed/view"
)

const headerRequestID = "X-Request-Id"

// requestIDTransport tags subgraph requests with the id of the client request that caused them.
type requestIDTransport struct {
	wrapped http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := view.RequestIDFromContext(req.Context())
	if id == "" {
		id = uuid.NewString()
	}

	req = req.Clone(req.Context())
	req.Header.Set(headerRequestID, id)
	return t.wrapped.RoundTrip(req)
}
