package view

import (
	"fmt"
	"net/http"

	"github.com/wundergraph/graphql-go-tools/execution/graphql"
)

// OperationKinds is a set of GraphQL operation types.
type OperationKinds uint8

const (
	KindQuery OperationKinds = 1 << iota
	KindMutation
	KindSubscription

	KindNone OperationKinds = 0
	KindAll                 = KindQuery | KindMutation | KindSubscription
)

// AllowedOperationKinds returns the operation types a request with the given method may run.
// GET is limited to queries, and to nothing at all when queries via GET are disabled.
func AllowedOperationKinds(method string, allowQueriesViaGET bool) OperationKinds {
	switch method {
	case http.MethodPost:
		return KindAll
	case http.MethodGet:
		if !allowQueriesViaGET {
			return KindNone
		}
		return KindQuery
	default:
		return KindNone
	}
}

// Permits reports whether the operation type is in the set.
// Unknown types are let through so the engine can report them as GraphQL errors.
func (k OperationKinds) Permits(operationType graphql.OperationType) bool {
	switch operationType {
	case graphql.OperationTypeQuery:
		return k&KindQuery != 0
	case graphql.OperationTypeMutation:
		return k&KindMutation != 0
	case graphql.OperationTypeSubscription:
		return k&KindSubscription != 0
	default:
		return true
	}
}

// InvalidOperationTypeError is returned when the operation type is not allowed for the request method.
type InvalidOperationTypeError struct {
	OperationType graphql.OperationType
}

func (e InvalidOperationTypeError) Error() string {
	return fmt.Sprintf("%s are not allowed", operationTypePlural(e.OperationType))
}

// HTTPReason is the message sent to the client.
func (e InvalidOperationTypeError) HTTPReason(method string) string {
	return fmt.Sprintf("%s are not allowed when using %s", operationTypePlural(e.OperationType), method)
}

func operationTypePlural(operationType graphql.OperationType) string {
	switch operationType {
	case graphql.OperationTypeQuery:
		return "queries"
	case graphql.OperationTypeMutation:
		return "mutations"
	case graphql.OperationTypeSubscription:
		return "subscriptions"
	default:
		return "operations"
	}
}
