package view

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/wundergraph/graphql-go-tools/execution/graphql"
)

const (
	messageInvalidJSON          = "Unable to parse request body as JSON"
	messageInvalidBody          = "Provide a valid graphql query in the body of your request"
	messageMissingQuery         = "No GraphQL query found in the request"
	messageInvalidVariables     = "Variables must be a JSON object"
	messageInvalidOperationName = "The operation name must be a string"
)

var (
	errInvalidJSON          = errors.New("invalid json")
	errInvalidBody          = errors.New("request body is not a json object")
	errMissingQuery         = errors.New("missing query")
	errInvalidVariables     = errors.New("variables are not a json object")
	errInvalidOperationName = errors.New("operation name is not a string")
)

const (
	paramQuery         = "query"
	paramVariables     = "variables"
	paramOperationName = "operationName"
	paramExtensions    = "extensions"
)

// Operation is the GraphQL payload extracted from a single request.
type Operation struct {
	Query         string
	Variables     json.RawMessage
	OperationName string
	Extensions    json.RawMessage
}

// GraphQLRequest converts the operation into the engine's request type.
func (o Operation) GraphQLRequest() *graphql.Request {
	return &graphql.Request{
		Query:         o.Query,
		Variables:     o.Variables,
		OperationName: o.OperationName,
		Extensions:    o.Extensions,
	}
}

type requestData map[string]json.RawMessage

func parseBody(body []byte) (requestData, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, errInvalidJSON
	}

	if _, ok := value.(map[string]any); !ok {
		return nil, errInvalidBody
	}

	var data requestData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errInvalidJSON
	}

	return data, nil
}

// parseQueryParams turns query-string parameters into the shape of a JSON body.
// variables and extensions carry JSON documents, everything else is a plain string.
func parseQueryParams(params url.Values) (requestData, error) {
	data := make(requestData, len(params))

	for key := range params {
		value := params.Get(key)

		switch key {
		case paramVariables, paramExtensions:
			if !json.Valid([]byte(value)) {
				return nil, errInvalidJSON
			}
			data[key] = json.RawMessage(value)
		default:
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, errInvalidJSON
			}
			data[key] = encoded
		}
	}

	return data, nil
}

func parseRequestData(data requestData) (Operation, error) {
	var op Operation

	if isNull(data[paramQuery]) {
		return op, errMissingQuery
	}
	if err := json.Unmarshal(data[paramQuery], &op.Query); err != nil || op.Query == "" {
		return op, errMissingQuery
	}

	if variables := data[paramVariables]; !isNull(variables) {
		if !isObject(variables) {
			return op, errInvalidVariables
		}
		op.Variables = variables
	}

	if name := data[paramOperationName]; !isNull(name) {
		if err := json.Unmarshal(name, &op.OperationName); err != nil {
			return op, errInvalidOperationName
		}
	}

	if extensions := data[paramExtensions]; isObject(extensions) {
		op.Extensions = extensions
	}

	return op, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
