package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const requestIDKey ctxKey = "reqid"

func RegisterRoutes(mux *http.ServeMux, handler *Handler) {
	// method dispatch happens inside the handler so non-POST/GET methods
	// get the DrChrono-expected 405 body
	mux.HandleFunc("/webhook", withRequestID(handler.HandleWebhook))
}

func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), requestIDKey, uuid.NewString())
		next(w, r.WithContext(ctx))
	}
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
