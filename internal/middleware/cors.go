package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORS allows the configured frontend origins to call the API with credentials
func CORS(allowedOrigins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	logger.Info("cors_configured", zap.Strings("allowed_origins", allowedOrigins))

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}
