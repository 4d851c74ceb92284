package handlers

import (
	"net/http"

	"github.com/Brownie44l1/xray-api/internal/middleware"
	"go.uber.org/zap"
)

// Routes registers every endpoint and wraps the mux in CORS and request
// logging.
func Routes(h *Handler, allowedOrigin string, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /detect", h.Detect)
	mux.HandleFunc("GET /reports", h.ListReports)
	mux.HandleFunc("GET /reports/{id}", h.GetReport)
	mux.HandleFunc("POST /chat", h.Chat)

	return middleware.Logger(log)(middleware.CORS(allowedOrigin)(mux))
}
