package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sleepcircle/wearlink/internal/pkg/serr"
)

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ReadJSON decodes the request body into out. Unknown fields are rejected.
func ReadJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return serr.Validation(err, "invalid JSON body")
	}

	return nil
}

func WriteJSON(w http.ResponseWriter, status int, resp any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	return enc.Encode(resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

// WriteError writes the {"error": msg} body used by every endpoint.
func WriteError(w http.ResponseWriter, status int, msg string) {
	if err := WriteJSON(w, status, errorResponse{Error: msg}); err != nil {
		slog.Error("write error response", "error", err)
	}
}

func HandleErr(w http.ResponseWriter, r *http.Request, err error) {
	attrs := []any{
		"error", err,
		"method", r.Method,
		"url", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	}
	if id := RequestID(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}

	var se *serr.ServiceError
	if errors.As(err, &se) {
		attrs = append(attrs, "kind", string(se.Kind))
		for k, v := range se.Env {
			attrs = append(attrs, fmt.Sprintf("env.%s", k), v)
		}

		if se.StatusCode >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "request error", attrs...)
		} else {
			slog.WarnContext(r.Context(), "request rejected", attrs...)
		}

		WriteError(w, se.StatusCode, se.Msg)
		return
	}

	slog.ErrorContext(r.Context(), "request error", attrs...)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error")
}
