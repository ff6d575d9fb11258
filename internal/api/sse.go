package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/graph-gophers/graphql-go"
	qerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/librarycatalog/library-server/internal/graph"
)

// sseWriteTimeout bounds each event write on a streaming response.
const sseWriteTimeout = 60 * time.Second

// openStream runs op and returns its results as a stream. Queries and
// mutations yield a single result; subscriptions yield one per event until
// ctx is cancelled or the source ends.
func (s *Server) openStream(ctx context.Context, op *graph.Operation) <-chan *graphql.Response {
	if op.Type() == ast.Subscription {
		stream, err := s.schema.Subscribe(ctx, op)
		if err == nil {
			return stream
		}
		s.logger.Error("subscription failed to start", "error", err, "operation", op.Name())
		return single(&graphql.Response{Errors: []*qerrors.QueryError{{
			Message:    err.Error(),
			Extensions: map[string]any{"code": "INTERNAL_SERVER_ERROR"},
		}}})
	}
	return single(s.schema.Execute(ctx, op))
}

func single(resp *graphql.Response) <-chan *graphql.Response {
	ch := make(chan *graphql.Response, 1)
	ch <- resp
	close(ch)
	return ch
}

// serveSSE streams op using the graphql-sse distinct connections mode:
// one "next" event per result, then "complete".
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, op *graph.Operation) {
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		s.logger.Error("streaming not supported", "error", err)
		return
	}

	log := s.logger.With(
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("operation", op.Name()),
	)

	stream := s.openStream(ctx, op)

	heartbeat := time.NewTicker(s.opts.KeepAlive)
	defer heartbeat.Stop()

	for {
		select {
		case resp, ok := <-stream:
			if !ok {
				if err := s.writeSSE(rc, w, "complete", nil); err != nil {
					log.Debug("client gone before complete", "error", err)
				}
				return
			}
			if err := s.writeSSE(rc, w, "next", resp); err != nil {
				log.Info("client disconnected during send")
				return
			}

		case <-heartbeat.C:
			if err := s.writeFrame(rc, w, []byte(":\n\n")); err != nil {
				log.Info("client disconnected during heartbeat")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// writeSSE writes one event. A nil payload sends an empty data line.
func (s *Server) writeSSE(rc *http.ResponseController, w http.ResponseWriter, event string, payload *graphql.Response) error {
	data := []byte{}
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
	}

	return s.writeFrame(rc, w, fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, data))
}

// writeFrame writes and flushes raw stream bytes, then extends the write deadline.
func (s *Server) writeFrame(rc *http.ResponseController, w http.ResponseWriter, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
		s.logger.Debug("failed to set write deadline", "error", err)
	}
	return nil
}
