package github

import (
	"strings"

	apperrors "github-stats-harvester/internal/errors"
)

// GraphQLError is one entry of a GraphQL response's "errors" list.
type GraphQLError struct {
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Path       []any          `json:"path"`
	Extensions map[string]any `json:"extensions"`
}

// GraphQLErrors is the full error list of one response.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		if ge.Type != "" {
			msgs = append(msgs, ge.Type+": "+ge.Message)
			continue
		}
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Error types for which a retry returns the same answer.
var permanentErrorTypes = map[string]bool{
	"NOT_FOUND":               true,
	"FORBIDDEN":               true,
	"INSUFFICIENT_SCOPES":     true,
	"UNPROCESSABLE":           true,
	"MAX_NODE_LIMIT_EXCEEDED": true,
}

// permanent reports whether retrying the query cannot help. Schema validation
// failures (parse errors, unknown fields) carry an extensions.code and no type.
func (e GraphQLError) permanent() bool {
	if permanentErrorTypes[e.Type] {
		return true
	}
	code, _ := e.Extensions["code"].(string)
	return code != ""
}

// classifyGraphQLErrors treats a response as permanent only when every error in it is.
func classifyGraphQLErrors(errs []GraphQLError) error {
	err := GraphQLErrors(errs)
	for _, e := range errs {
		if !e.permanent() {
			return &apperrors.TransientRequestError{Err: err}
		}
	}
	return &apperrors.PermanentRequestError{Err: err}
}
