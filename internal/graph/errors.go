package graph

import (
	"context"
	"errors"
	"log/slog"

	"github.com/graph-gophers/graphql-go"
	qerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/vektah/gqlparser/v2/gqlerror"

	domainerrors "github.com/librarycatalog/library-server/internal/errors"
)

// Codes of errors raised before any resolver runs.
const (
	codeBadRequest       = "BAD_REQUEST"
	codeParseFailed      = "GRAPHQL_PARSE_FAILED"
	codeValidationFailed = "GRAPHQL_VALIDATION_FAILED"
)

func requestError(code, msg string) *qerrors.QueryError {
	return &qerrors.QueryError{Message: msg, Extensions: map[string]any{"code": code}}
}

func parseError(err error) *qerrors.QueryError {
	out := requestError(codeParseFailed, err.Error())
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		out.Message = gerr.Message
		for _, loc := range gerr.Locations {
			out.Locations = append(out.Locations, qerrors.Location{Line: loc.Line, Column: loc.Column})
		}
	}
	return out
}

// validationCode reports bad argument and variable values as user input and
// everything else as an invalid document.
func validationCode(rule string) string {
	switch rule {
	case "ArgumentsOfCorrectType", "VariablesOfCorrectType", "DefaultValuesOfCorrectType":
		return string(domainerrors.CodeBadUserInput)
	}
	return codeValidationFailed
}

// finish gives every error an extensions.code and logs internal ones. Errors
// raised while coercing arguments stop the operation before any resolver
// runs; the response then carries no data.
func (s *Schema) finish(ctx context.Context, resp *graphql.Response) *graphql.Response {
	rejected := false
	for _, e := range resp.Errors {
		switch {
		case e.ResolverError != nil:
			s.resolverError(ctx, e)
		case e.Extensions != nil:
		case len(e.Path) > 0:
			e.Extensions = map[string]any{"code": string(domainerrors.CodeInternal)}
			s.logger.ErrorContext(ctx, "field failed", "error", e.Message, "path", e.Path)
		default:
			rejected = true
			e.Extensions = map[string]any{"code": string(domainerrors.CodeBadUserInput)}
		}
	}
	if rejected {
		resp.Data = nil
	}
	return resp
}

// resolverError replaces the engine's message with the public one of a
// domain error. Anything else is internal.
func (s *Schema) resolverError(ctx context.Context, e *qerrors.QueryError) {
	var derr *domainerrors.Error
	if errors.As(e.ResolverError, &derr) {
		e.Message = derr.PublicMessage()
		e.Extensions = derr.Extensions()
		if derr.Code != domainerrors.CodeInternal {
			return
		}
	} else {
		e.Extensions = map[string]any{"code": string(domainerrors.CodeInternal)}
	}
	s.logger.ErrorContext(ctx, "resolver failed", "error", e.ResolverError, "path", e.Path)
}

// panicLogger routes recovered resolver panics to slog.
type panicLogger struct {
	logger *slog.Logger
}

func (l panicLogger) LogPanic(ctx context.Context, value any) {
	l.logger.ErrorContext(ctx, "resolver panicked", "panic", value)
}
