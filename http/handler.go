// Package http serves a view.Handler over net/http.
package http

import (
	"errors"
	"io"
	"net/http"

	log "github.com/jensneuse/abstractlogger"

	"github.com/it512/fed/view"
)

const defaultMaxBodyBytes int64 = 1 << 20

func NewGraphqlHTTPHandler(handler view.Handler, logger log.Logger) *GraphQLHTTPRequestHandler {
	return &GraphQLHTTPRequestHandler{
		handler:      handler,
		log:          logger,
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

type GraphQLHTTPRequestHandler struct {
	handler      view.Handler
	log          log.Logger
	maxBodyBytes int64
}

// SetMaxBodyBytes limits the size of request bodies. Larger bodies are rejected with 413.
func (g *GraphQLHTTPRequestHandler) SetMaxBodyBytes(n int64) {
	g.maxBodyBytes = n
}

func (g *GraphQLHTTPRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handleHTTP(w, r)
}

func (g *GraphQLHTTPRequestHandler) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.maxBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			g.write(w, view.ErrorResponse(http.StatusRequestEntityTooLarge, view.CodeBadRequest, "Request body too large"))
			return
		}

		g.log.Error("read request body", log.Error(err))
		g.write(w, view.ErrorResponse(http.StatusBadRequest, view.CodeBadRequest, "Unable to read request body"))
		return
	}

	req := &view.Request{
		Method:     r.Method,
		Header:     r.Header,
		Query:      r.URL.Query(),
		Body:       body,
		RemoteAddr: r.RemoteAddr,
	}

	g.write(w, g.handler.Handle(r.Context(), req))
}

func (g *GraphQLHTTPRequestHandler) write(w http.ResponseWriter, resp *view.Response) {
	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		g.log.Error("write response", log.Error(err))
	}
}
