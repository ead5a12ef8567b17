package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fulldump/box"

	"github.com/joshuapare/heapkit/cmd/heapd/service"
)

func AccessLog(l *slog.Logger) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			r := box.GetRequest(ctx)
			now := time.Now()
			defer func() {
				l.Info("access",
					"remote", formatRemoteAddr(r),
					"method", r.Method,
					"url", r.URL.String(),
					"elapsed", time.Since(now))
			}()

			next(ctx)
		}
	}
}

func formatRemoteAddr(r *http.Request) string {
	xorigin := strings.TrimSpace(strings.Split(
		r.Header.Get("X-Forwarded-For"), ",")[0])
	if xorigin != "" {
		return xorigin
	}

	if i := strings.LastIndex(r.RemoteAddr, ":"); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}

// RecoverFromPanic turns a handler panic into a 500 response. Allocator
// assertion failures carry their stack in the error.
func RecoverFromPanic(next box.H) box.H {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				box.SetError(ctx, errors.Wrap(err, "panic"))
			}
		}()
		next(ctx)
	}
}

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func writeError(w http.ResponseWriter, status int, message, description string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": PrettyError{
			Message:     message,
			Description: description,
		},
	})
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)
		r := box.GetRequest(ctx)

		var syntaxErr *json.SyntaxError
		switch {
		case err == box.ErrResourceNotFound:
			writeError(w, http.StatusNotFound, err.Error(),
				fmt.Sprintf("resource '%s' not found", r.URL.String()))
		case err == box.ErrMethodNotAllowed:
			writeError(w, http.StatusMethodNotAllowed, err.Error(),
				fmt.Sprintf("method '%s' not allowed", r.Method))
		case errors.As(err, &syntaxErr):
			writeError(w, http.StatusBadRequest, err.Error(), "Malformed JSON")
		case errors.Is(err, service.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, err.Error(), "Invalid argument")
		case errors.Is(err, service.ErrReservationNotFound):
			writeError(w, http.StatusNotFound, err.Error(), "Reservation not found")
		case errors.Is(err, service.ErrOutOfMemory):
			writeError(w, http.StatusInsufficientStorage, err.Error(), "Heap exhausted")
		default:
			writeError(w, http.StatusInternalServerError, err.Error(), "Unexpected error")
		}
	}
}
