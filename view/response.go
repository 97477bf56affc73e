package view

import (
	"encoding/json"
	"net/http"
)

const (
	CodeBadRequest          = "BadRequestError"
	CodeMethodNotAllowed    = "MethodNotAllowedError"
	CodeNotFound            = "NotFoundError"
	CodeInternalServerError = "InternalServerError"
)

// Response is what a host writes back to the client.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ErrorBody is the body of every response the view rejects before execution.
type ErrorBody struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// ErrorResponse builds a response with an ErrorBody.
func ErrorResponse(statusCode int, code, message string) *Response {
	body, _ := json.Marshal(ErrorBody{Code: code, Message: message})

	return &Response{
		StatusCode: statusCode,
		Header:     http.Header{httpHeaderContentType: []string{httpContentTypeApplicationJson}},
		Body:       body,
	}
}

func jsonResponse(statusCode int, body []byte) *Response {
	return &Response{
		StatusCode: statusCode,
		Header:     http.Header{httpHeaderContentType: []string{httpContentTypeApplicationJson}},
		Body:       body,
	}
}

func htmlResponse(body []byte) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{httpHeaderContentType: []string{httpContentTypeTextHtml}},
		Body:       body,
	}
}

// TemporalResponse lets code running during execution influence the final
// status code and headers. It is created per request and reachable through
// ResponseFromContext.
type TemporalResponse struct {
	StatusCode int
	Header     http.Header
}

func newTemporalResponse() *TemporalResponse {
	return &TemporalResponse{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
	}
}
