package view

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wundergraph/graphql-go-tools/execution/graphql"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/graphqlerrors"
)

const helloResult = `{"data":{"hello":"world"}}`

type recordingExecutor struct {
	calls     int
	operation *graphql.Request
	ctx       context.Context
	result    string
	err       error
	onExecute func(ctx context.Context)
}

func (e *recordingExecutor) Execute(ctx context.Context, operation *graphql.Request, w io.Writer) error {
	e.calls++
	e.operation = operation
	e.ctx = ctx

	if e.onExecute != nil {
		e.onExecute(ctx)
	}
	if e.err != nil {
		return e.err
	}

	_, err := io.WriteString(w, e.result)
	return err
}

func newTestView(t *testing.T, config Config, executor Executor, opts ...Option) *GraphQLView {
	t.Helper()

	v, err := New(nil, executor, config, opts...)
	require.NoError(t, err)
	return v
}

func jsonRequest(method, body string) *Request {
	return &Request{
		Method: method,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(body),
	}
}

func getRequest(query url.Values, accept string) *Request {
	r := &Request{
		Method: http.MethodGet,
		Header: http.Header{},
		Query:  query,
	}
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	return r
}

func decodeErrorBody(t *testing.T, resp *Response) ErrorBody {
	t.Helper()

	var body ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	return body
}

func TestGraphQLView_Handle(t *testing.T) {
	t.Run("post with a json query executes the operation", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.JSONEq(t, helloResult, string(resp.Body))
		assert.Equal(t, 1, executor.calls)
		assert.Equal(t, "{ hello }", executor.operation.Query)
	})

	t.Run("variables and operation name are passed to the executor", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		body := `{"query":"query Hello($name: String) { hello(name: $name) }","variables":{"name":"gopher"},"operationName":"Hello"}`
		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, body))

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Hello", executor.operation.OperationName)
		assert.JSONEq(t, `{"name":"gopher"}`, string(executor.operation.Variables))
	})

	t.Run("methods other than get and post are rejected", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead} {
			resp := v.Handle(context.Background(), jsonRequest(method, `{"query":"{ hello }"}`))

			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
			assert.Equal(t, ErrorBody{
				Code:    "MethodNotAllowedError",
				Message: "Unsupported method, must be of request type POST or GET",
			}, decodeErrorBody(t, resp))
		}
		assert.Equal(t, 0, executor.calls)
	})

	t.Run("malformed json body", func(t *testing.T) {
		v := newTestView(t, DefaultConfig(), &recordingExecutor{})

		for _, body := range []string{`not json`, ``, `{"query":`} {
			resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, body))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, ErrorBody{
				Code:    "BadRequestError",
				Message: "Unable to parse request body as JSON",
			}, decodeErrorBody(t, resp))
		}
	})

	t.Run("json body that is not an object", func(t *testing.T) {
		v := newTestView(t, DefaultConfig(), &recordingExecutor{})

		for _, body := range []string{`[]`, `"{ hello }"`, `42`, `null`} {
			resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, body))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, ErrorBody{
				Code:    "BadRequestError",
				Message: "Provide a valid graphql query in the body of your request",
			}, decodeErrorBody(t, resp))
		}
	})

	t.Run("content type lookup is case insensitive", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		r := NewRequest("post", map[string]string{"content-type": "application/json; charset=utf-8"}, nil, []byte(`{"query":"{ hello }"}`))
		resp := v.Handle(context.Background(), r)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, executor.calls)
	})

	t.Run("missing query", func(t *testing.T) {
		v := newTestView(t, DefaultConfig(), &recordingExecutor{})

		for _, body := range []string{`{}`, `{"query":""}`, `{"query":null}`, `{"query":42}`, `{"variables":{}}`} {
			resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, body))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
			assert.Equal(t, ErrorBody{
				Code:    "BadRequestError",
				Message: "No GraphQL query found in the request",
			}, decodeErrorBody(t, resp))
		}
	})

	t.Run("variables must be an object", func(t *testing.T) {
		v := newTestView(t, DefaultConfig(), &recordingExecutor{})

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }","variables":[1]}`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Variables must be a JSON object", decodeErrorBody(t, resp).Message)
	})

	t.Run("null variables are ignored", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }","variables":null}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, executor.operation.Variables)
	})

	t.Run("post without json content type is not found", func(t *testing.T) {
		v := newTestView(t, DefaultConfig(), &recordingExecutor{})

		r := &Request{Method: http.MethodPost, Header: http.Header{"Content-Type": []string{"text/plain"}}, Body: []byte(`{ hello }`)}
		resp := v.Handle(context.Background(), r)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, ErrorBody{Code: "NotFoundError", Message: "Not found"}, decodeErrorBody(t, resp))
	})
}

func TestGraphQLView_HandleGet(t *testing.T) {
	t.Run("query from query string parameters", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		query := url.Values{
			"query":         []string{"query Hello($name: String) { hello(name: $name) }"},
			"variables":     []string{`{"name":"gopher"}`},
			"operationName": []string{"Hello"},
		}
		resp := v.Handle(context.Background(), getRequest(query, ""))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, helloResult, string(resp.Body))
		assert.Equal(t, "Hello", executor.operation.OperationName)
		assert.JSONEq(t, `{"name":"gopher"}`, string(executor.operation.Variables))
	})

	t.Run("malformed variables parameter", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		query := url.Values{
			"query":     []string{"{ hello }"},
			"variables": []string{`{"name":`},
		}
		resp := v.Handle(context.Background(), getRequest(query, ""))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorBody{
			Code:    "BadRequestError",
			Message: "Unable to parse request body as JSON",
		}, decodeErrorBody(t, resp))
		assert.Equal(t, 0, executor.calls)
	})

	t.Run("parameters without a query", func(t *testing.T) {
		v := newTestView(t, DefaultConfig(), &recordingExecutor{})

		resp := v.Handle(context.Background(), getRequest(url.Values{"foo": []string{"bar"}}, "text/html"))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "No GraphQL query found in the request", decodeErrorBody(t, resp).Message)
	})

	t.Run("browser without parameters gets the explorer", func(t *testing.T) {
		executor := &recordingExecutor{}
		v := newTestView(t, DefaultConfig(), executor)

		for _, accept := range []string{"text/html,application/xhtml+xml,application/xml;q=0.9", "*/*"} {
			resp := v.Handle(context.Background(), getRequest(nil, accept))

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
			assert.Contains(t, string(resp.Body), "<title>GraphiQL</title>")
		}
		assert.Equal(t, 0, executor.calls)
	})

	t.Run("explorer disabled", func(t *testing.T) {
		config := DefaultConfig()
		config.Explorer = false
		v := newTestView(t, config, &recordingExecutor{})

		resp := v.Handle(context.Background(), getRequest(nil, "text/html"))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, ErrorBody{Code: "NotFoundError", Message: "Not found"}, decodeErrorBody(t, resp))
	})

	t.Run("client not asking for html", func(t *testing.T) {
		v := newTestView(t, DefaultConfig(), &recordingExecutor{})

		resp := v.Handle(context.Background(), getRequest(nil, "application/json"))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("mutations are not allowed via get", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		resp := v.Handle(context.Background(), getRequest(url.Values{"query": []string{"mutation { addHello }"}}, ""))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorBody{
			Code:    "BadRequestError",
			Message: "mutations are not allowed when using GET",
		}, decodeErrorBody(t, resp))
		assert.Equal(t, 0, executor.calls)
	})

	t.Run("queries via get can be disabled", func(t *testing.T) {
		config := DefaultConfig()
		config.AllowQueriesViaGET = false
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, config, executor)

		resp := v.Handle(context.Background(), getRequest(url.Values{"query": []string{"{ hello }"}}, ""))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "queries are not allowed when using GET", decodeErrorBody(t, resp).Message)
		assert.Equal(t, 0, executor.calls)
	})

	t.Run("disabling queries via get leaves post untouched", func(t *testing.T) {
		config := DefaultConfig()
		config.AllowQueriesViaGET = false
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, config, executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"mutation { addHello }"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, executor.calls)
	})

	t.Run("operation name selects the checked operation", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		query := url.Values{
			"query":         []string{"query Read { hello } mutation Write { addHello }"},
			"operationName": []string{"Write"},
		}
		resp := v.Handle(context.Background(), getRequest(query, ""))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "mutations are not allowed when using GET", decodeErrorBody(t, resp).Message)
	})
}

func TestGraphQLView_Execution(t *testing.T) {
	t.Run("status code and headers set during execution", func(t *testing.T) {
		executor := &recordingExecutor{
			result: helloResult,
			onExecute: func(ctx context.Context) {
				resp, ok := ResponseFromContext(ctx)
				require.True(t, ok)
				resp.StatusCode = http.StatusAccepted
				resp.Header.Set("X-Hello", "world")
			},
		}
		v := newTestView(t, DefaultConfig(), executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }"}`))

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "world", resp.Header.Get("X-Hello"))
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("execution context exposes the request and its id", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor, WithRequestIDGenerator(func() string { return "req-1" }))

		r := jsonRequest(http.MethodPost, `{"query":"{ hello }"}`)
		v.Handle(context.Background(), r)

		got, ok := RequestFromContext(executor.ctx)
		require.True(t, ok)
		assert.Same(t, r, got)
		assert.Equal(t, "req-1", RequestIDFromContext(executor.ctx))
	})

	t.Run("context hook", func(t *testing.T) {
		type key struct{}
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor, WithContext(func(ctx context.Context, r *Request, resp *TemporalResponse) context.Context {
			return context.WithValue(ctx, key{}, r.Method)
		}))

		v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }"}`))

		assert.Equal(t, http.MethodPost, executor.ctx.Value(key{}))
	})

	t.Run("result processor rewrites the body", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor, WithResultProcessor(func(ctx context.Context, r *Request, result []byte) ([]byte, error) {
			return []byte(`{"data":null}`), nil
		}))

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"data":null}`, string(resp.Body))
	})

	t.Run("graphql errors from the executor are a graphql response", func(t *testing.T) {
		executor := &recordingExecutor{
			err: graphqlerrors.RequestErrors{{Message: "field not found"}},
		}
		v := newTestView(t, DefaultConfig(), executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"errors":[{"message":"field not found"}]}`, string(resp.Body))
	})

	t.Run("unexpected executor errors are internal errors", func(t *testing.T) {
		executor := &recordingExecutor{err: errors.New("boom")}
		v := newTestView(t, DefaultConfig(), executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }"}`))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, ErrorBody{Code: "InternalServerError", Message: "Internal server error"}, decodeErrorBody(t, resp))
	})

	t.Run("a document that does not parse is a graphql error", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := newTestView(t, DefaultConfig(), executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"query {"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(resp.Body), `"errors"`)
		assert.Equal(t, 0, executor.calls)
	})

	t.Run("operations are validated against the schema", func(t *testing.T) {
		schema, err := graphql.NewSchemaFromString(`
			schema { query: Query }
			type Query { hello: String }
		`)
		require.NoError(t, err)

		executor := &recordingExecutor{result: helloResult}
		v, err := New(schema, executor, DefaultConfig())
		require.NoError(t, err)
		assert.Same(t, schema, v.Schema())

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello }"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, executor.calls)
		assert.True(t, executor.operation.IsNormalized())
	})

	schemaView := func(t *testing.T, executor Executor) *GraphQLView {
		t.Helper()

		schema, err := graphql.NewSchemaFromString(`
			schema { query: Query }
			type Query { hello(name: String): String }
		`)
		require.NoError(t, err)

		v, err := New(schema, executor, DefaultConfig())
		require.NoError(t, err)
		return v
	}

	t.Run("unknown fields are graphql errors", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := schemaView(t, executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ nope }"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Contains(t, string(resp.Body), `"errors"`)
		assert.Equal(t, 0, executor.calls)
	})

	t.Run("undefined variables are graphql errors", func(t *testing.T) {
		executor := &recordingExecutor{result: helloResult}
		v := schemaView(t, executor)

		resp := v.Handle(context.Background(), jsonRequest(http.MethodPost, `{"query":"{ hello(name: $name) }"}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(resp.Body), `"errors"`)
		assert.Equal(t, 0, executor.calls)
	})
}

func TestGraphQLView_validate(t *testing.T) {
	schema, err := graphql.NewSchemaFromString(`
		schema { query: Query }
		type Query { hello: String }
	`)
	require.NoError(t, err)

	v, err := New(schema, &recordingExecutor{}, DefaultConfig())
	require.NoError(t, err)

	t.Run("normalization failure", func(t *testing.T) {
		resp, ok := v.validate(&graphql.Request{Query: "query {"})

		assert.False(t, ok)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(resp.Body), `"errors"`)
	})

	t.Run("validation failure", func(t *testing.T) {
		resp, ok := v.validate(&graphql.Request{Query: "{ nope }"})

		assert.False(t, ok)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(resp.Body), `"errors"`)
	})

	t.Run("valid", func(t *testing.T) {
		resp, ok := v.validate(&graphql.Request{Query: "{ hello }"})

		assert.True(t, ok)
		assert.Nil(t, resp)
	})
}

func TestNew(t *testing.T) {
	v, err := New(nil, &recordingExecutor{}, Config{Explorer: true})
	require.NoError(t, err)

	assert.Equal(t, "/graphql", v.Config().Endpoint)
	assert.Equal(t, "GraphiQL", v.Config().ExplorerTitle)
	assert.False(t, v.Config().AllowQueriesViaGET)
}
