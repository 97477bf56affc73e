// Package view adapts HTTP requests from serverless and net/http hosts to a GraphQL engine.
//
// A GraphQLView extracts the operation from a JSON body or from query-string
// parameters, checks the operation type against the request method, executes it
// and turns the result into a host-neutral Response. Browsers asking for HTML get
// the GraphiQL explorer instead.
package view

import (
	"bytes"
	"context"
	"net/http"

	"github.com/google/uuid"
	log "github.com/jensneuse/abstractlogger"

	"github.com/wundergraph/graphql-go-tools/execution/graphql"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/graphqlerrors"
)

const (
	defaultEndpoint      = "/graphql"
	defaultExplorerTitle = "GraphiQL"
)

// Config is fixed when the view is created.
type Config struct {
	// Explorer serves the GraphiQL page to GET requests that accept HTML and carry no operation.
	Explorer bool
	// AllowQueriesViaGET permits query operations on GET requests. Mutations and
	// subscriptions are never allowed via GET.
	AllowQueriesViaGET bool
	// Endpoint is the URL the explorer page sends its operations to.
	Endpoint string
	// ExplorerTitle is the title of the explorer page.
	ExplorerTitle string
}

func DefaultConfig() Config {
	return Config{
		Explorer:           true,
		AllowQueriesViaGET: true,
		Endpoint:           defaultEndpoint,
		ExplorerTitle:      defaultExplorerTitle,
	}
}

// ContextFunc prepares the context the executor runs with.
type ContextFunc func(ctx context.Context, r *Request, resp *TemporalResponse) context.Context

// ResultProcessor may rewrite the serialized result before it is sent.
type ResultProcessor func(ctx context.Context, r *Request, result []byte) ([]byte, error)

type Option func(v *GraphQLView)

func WithLogger(logger log.Logger) Option {
	return func(v *GraphQLView) {
		v.logger = logger
	}
}

func WithContext(fn ContextFunc) Option {
	return func(v *GraphQLView) {
		v.contextFunc = fn
	}
}

func WithResultProcessor(fn ResultProcessor) Option {
	return func(v *GraphQLView) {
		v.resultProcessor = fn
	}
}

// WithRequestIDGenerator replaces the uuid based request ids.
func WithRequestIDGenerator(fn func() string) Option {
	return func(v *GraphQLView) {
		v.requestID = fn
	}
}

// Handler is implemented by GraphQLView and by anything that forwards to one.
type Handler interface {
	Handle(ctx context.Context, r *Request) *Response
}

// GraphQLView is safe for concurrent use; it holds no per-request state.
type GraphQLView struct {
	schema   *graphql.Schema
	executor Executor
	config   Config

	logger          log.Logger
	contextFunc     ContextFunc
	resultProcessor ResultProcessor
	requestID       func() string

	explorerPage []byte
}

// New creates a view executing operations with executor. When schema is not nil,
// operations are normalized and validated against it before they reach the executor.
func New(schema *graphql.Schema, executor Executor, config Config, opts ...Option) (*GraphQLView, error) {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	if config.ExplorerTitle == "" {
		config.ExplorerTitle = defaultExplorerTitle
	}

	v := &GraphQLView{
		schema:    schema,
		executor:  executor,
		config:    config,
		logger:    log.NoopLogger,
		requestID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(v)
	}

	if config.Explorer {
		page, err := RenderExplorer(config.ExplorerTitle, config.Endpoint)
		if err != nil {
			return nil, err
		}
		v.explorerPage = page
	}

	return v, nil
}

func (v *GraphQLView) Schema() *graphql.Schema {
	return v.schema
}

func (v *GraphQLView) Config() Config {
	return v.config
}

func (v *GraphQLView) Handle(ctx context.Context, r *Request) *Response {
	method := r.Method

	if method != http.MethodPost && method != http.MethodGet {
		return ErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed,
			"Unsupported method, must be of request type POST or GET")
	}

	var (
		data requestData
		err  error
	)

	switch {
	case r.isJSON():
		data, err = parseBody(r.Body)
		if err == errInvalidBody {
			return ErrorResponse(http.StatusBadRequest, CodeBadRequest, messageInvalidBody)
		}
		if err != nil {
			return ErrorResponse(http.StatusBadRequest, CodeBadRequest, messageInvalidJSON)
		}
	case method == http.MethodGet && len(r.Query) > 0:
		data, err = parseQueryParams(r.Query)
		if err != nil {
			return ErrorResponse(http.StatusBadRequest, CodeBadRequest, messageInvalidJSON)
		}
	case method == http.MethodGet && v.shouldRenderExplorer(r):
		return htmlResponse(v.explorerPage)
	default:
		return ErrorResponse(http.StatusNotFound, CodeNotFound, "Not found")
	}

	op, err := parseRequestData(data)
	switch err {
	case nil:
	case errInvalidVariables:
		return ErrorResponse(http.StatusBadRequest, CodeBadRequest, messageInvalidVariables)
	case errInvalidOperationName:
		return ErrorResponse(http.StatusBadRequest, CodeBadRequest, messageInvalidOperationName)
	default:
		return ErrorResponse(http.StatusBadRequest, CodeBadRequest, messageMissingQuery)
	}

	return v.execute(ctx, r, op)
}

func (v *GraphQLView) shouldRenderExplorer(r *Request) bool {
	if !v.config.Explorer {
		return false
	}
	return r.acceptsHTML()
}

func (v *GraphQLView) execute(ctx context.Context, r *Request, op Operation) *Response {
	gqlRequest := op.GraphQLRequest()
	gqlRequest.SetHeader(r.Header)

	operationType, err := gqlRequest.OperationType()
	if err != nil {
		// the document does not parse, which is a GraphQL error rather than a bad HTTP request
		return v.graphQLErrorResponse(err)
	}

	allowed := AllowedOperationKinds(r.Method, v.config.AllowQueriesViaGET)
	if !allowed.Permits(operationType) {
		typeErr := InvalidOperationTypeError{OperationType: operationType}
		return ErrorResponse(http.StatusBadRequest, CodeBadRequest, typeErr.HTTPReason(r.Method))
	}

	if v.schema != nil {
		if resp, ok := v.validate(gqlRequest); !ok {
			return resp
		}
	}

	requestID := v.requestID()
	temporal := newTemporalResponse()

	execCtx := withExecutionContext(ctx, requestID, r, temporal)
	if v.contextFunc != nil {
		execCtx = v.contextFunc(execCtx, r, temporal)
	}

	v.logger.Debug("execute operation",
		log.String("requestID", requestID),
		log.String("method", r.Method),
		log.String("remoteAddr", r.RemoteAddr),
		log.String("operationName", op.OperationName),
	)

	buf := bytes.NewBuffer(make([]byte, 0, 4096))
	if err = v.executor.Execute(execCtx, gqlRequest, buf); err != nil {
		if gqlErrs, ok := graphQLErrors(err); ok {
			return v.writeErrors(gqlErrs)
		}

		v.logger.Error("execute operation",
			log.String("requestID", requestID),
			log.Error(err),
		)
		return ErrorResponse(http.StatusInternalServerError, CodeInternalServerError, "Internal server error")
	}

	result := buf.Bytes()
	if v.resultProcessor != nil {
		result, err = v.resultProcessor(execCtx, r, result)
		if err != nil {
			v.logger.Error("process result",
				log.String("requestID", requestID),
				log.Error(err),
			)
			return ErrorResponse(http.StatusInternalServerError, CodeInternalServerError, "Internal server error")
		}
	}

	statusCode := temporal.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	resp := jsonResponse(statusCode, result)
	for key, values := range temporal.Header {
		resp.Header[key] = append([]string(nil), values...)
	}

	return resp
}

func (v *GraphQLView) validate(gqlRequest *graphql.Request) (*Response, bool) {
	normalized, err := gqlRequest.Normalize(v.schema)
	if err != nil {
		return v.graphQLErrorResponse(err), false
	}
	if !normalized.Successful {
		return v.writeErrors(normalized.Errors), false
	}

	validated, err := gqlRequest.ValidateForSchema(v.schema)
	if err != nil {
		return v.graphQLErrorResponse(err), false
	}
	if !validated.Valid {
		return v.writeErrors(validated.Errors), false
	}

	return nil, true
}

func (v *GraphQLView) graphQLErrorResponse(err error) *Response {
	if gqlErrs, ok := graphQLErrors(err); ok {
		return v.writeErrors(gqlErrs)
	}

	v.logger.Error("prepare operation", log.Error(err))
	return ErrorResponse(http.StatusInternalServerError, CodeInternalServerError, "Internal server error")
}

func (v *GraphQLView) writeErrors(gqlErrs graphqlerrors.Errors) *Response {
	if gqlErrs == nil || gqlErrs.Count() == 0 {
		return ErrorResponse(http.StatusInternalServerError, CodeInternalServerError, "Internal server error")
	}

	var buf bytes.Buffer
	if _, err := gqlErrs.WriteResponse(&buf); err != nil {
		v.logger.Error("write errors", log.Error(err))
		return ErrorResponse(http.StatusInternalServerError, CodeInternalServerError, "Internal server error")
	}

	return jsonResponse(http.StatusOK, buf.Bytes())
}
