package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/graph-gophers/graphql-go"
	qerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/librarycatalog/library-server/internal/graph"
)

// maxBodySize caps POST bodies.
const maxBodySize = 1 << 20

var errStreamingRequired = errors.New("subscriptions require a streaming transport")

// handleGraphQL serves queries and mutations over plain HTTP and hands
// streaming requests to the SSE and WebSocket transports.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}

	params, err := decodeParams(w, r)
	if err != nil {
		writeResponse(w, http.StatusBadRequest, requestError(err))
		return
	}

	op, errs := s.schema.Prepare(params)
	if errs != nil {
		writeResponse(w, http.StatusBadRequest, &graphql.Response{Errors: errs})
		return
	}

	// GET must stay side-effect free on every transport.
	if r.Method == http.MethodGet && op.Type() == ast.Mutation {
		w.Header().Set("Allow", http.MethodPost)
		writeResponse(w, http.StatusMethodNotAllowed, requestError(fmt.Errorf("%s operations must use POST", op.Type())))
		return
	}

	if acceptsEventStream(r) {
		s.serveSSE(w, r, op)
		return
	}

	if op.Type() == ast.Subscription {
		writeResponse(w, http.StatusBadRequest, requestError(errStreamingRequired))
		return
	}

	writeResponse(w, http.StatusOK, s.schema.Execute(r.Context(), op))
}

// decodeParams reads a GraphQL request from the query string (GET) or a JSON body (POST).
func decodeParams(w http.ResponseWriter, r *http.Request) (graph.Params, error) {
	var p graph.Params

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		p.Query = q.Get("query")
		p.OperationName = q.Get("operationName")
		if raw := q.Get("variables"); raw != "" {
			if err := decodeJSON(strings.NewReader(raw), &p.Variables); err != nil {
				return p, fmt.Errorf("variables are invalid JSON: %w", err)
			}
		}
		if raw := q.Get("extensions"); raw != "" {
			if err := decodeJSON(strings.NewReader(raw), &p.Extensions); err != nil {
				return p, fmt.Errorf("extensions are invalid JSON: %w", err)
			}
		}
		return p, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return p, fmt.Errorf("unsupported content type %q", ct)
		}
	}

	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := decodeJSON(body, &p); err != nil {
		return p, fmt.Errorf("body is not a valid GraphQL request: %w", err)
	}
	return p, nil
}

// decodeJSON decodes a single JSON value. Numbers stay float64, which is
// what the engine range-checks Int variables against.
func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func requestError(err error) *graphql.Response {
	return &graphql.Response{Errors: []*qerrors.QueryError{{
		Message:    err.Error(),
		Extensions: map[string]any{"code": "BAD_REQUEST"},
	}}}
}

func writeResponse(w http.ResponseWriter, status int, resp *graphql.Response) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func acceptsEventStream(r *http.Request) bool {
	for part := range strings.SplitSeq(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "text/event-stream" {
			return true
		}
	}
	return false
}
