package view

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/wundergraph/graphql-go-tools/execution/engine"
	"github.com/wundergraph/graphql-go-tools/execution/graphql"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/engine/resolve"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/graphqlerrors"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/operationreport"
)

// Executor runs a single GraphQL operation and writes the serialized response document to w.
// Errors implementing graphqlerrors.Errors are reported to the client as GraphQL errors,
// any other error becomes an internal server error.
type Executor interface {
	Execute(ctx context.Context, operation *graphql.Request, w io.Writer) error
}

type ExecutorFunc func(ctx context.Context, operation *graphql.Request, w io.Writer) error

func (f ExecutorFunc) Execute(ctx context.Context, operation *graphql.Request, w io.Writer) error {
	return f(ctx, operation, w)
}

var _ Executor = (*EngineExecutor)(nil)

// EngineExecutor runs operations on a wundergraph execution engine.
type EngineExecutor struct {
	engine    *engine.ExecutionEngine
	enableART bool
}

func NewEngineExecutor(engine *engine.ExecutionEngine, enableART bool) *EngineExecutor {
	return &EngineExecutor{
		engine:    engine,
		enableART: enableART,
	}
}

func (e *EngineExecutor) Execute(ctx context.Context, operation *graphql.Request, w io.Writer) error {
	var opts []engine.ExecutionOptions

	if e.enableART {
		tracingOpts := resolve.TraceOptions{
			Enable:                                 true,
			ExcludePlannerStats:                    false,
			ExcludeRawInputData:                    false,
			ExcludeInput:                           false,
			ExcludeOutput:                          false,
			ExcludeLoadStats:                       false,
			EnablePredictableDebugTimings:          false,
			IncludeTraceOutputInResponseExtensions: true,
		}

		opts = append(opts, engine.WithRequestTraceOptions(tracingOpts))
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4096))
	resultWriter := graphql.NewEngineResultWriterFromBuffer(buf)
	if err := e.engine.Execute(ctx, operation, &resultWriter, opts...); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// graphQLErrors reports whether err should be sent to the client as a GraphQL error document.
func graphQLErrors(err error) (graphqlerrors.Errors, bool) {
	var gqlErrs graphqlerrors.Errors
	if errors.As(err, &gqlErrs) {
		return gqlErrs, true
	}

	if report, ok := err.(operationreport.Report); ok && len(report.ExternalErrors) > 0 {
		return graphqlerrors.RequestErrorsFromOperationReport(report), true
	}

	return nil, false
}
