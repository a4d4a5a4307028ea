package errors

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler wraps an http.Handler and turns panics into an InternalError response.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID := w.Header().Get("X-Request-ID")
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("request_id", requestID),
					)

					WriteError(w, NewInternalError(requestID, nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs an error with its context. Client errors are logged at
// warn level, everything else at error level.
func LogError(logger *zap.Logger, err error, requestID string) {
	var apiErr *APIError
	if !As(err, &apiErr) {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		return
	}

	fields := []zap.Field{
		zap.String("error_type", string(apiErr.Type)),
		zap.String("message", apiErr.Message),
		zap.Int("code", apiErr.Code),
		zap.String("request_id", requestID),
	}
	if apiErr.Model != "" {
		fields = append(fields, zap.String("model", apiErr.Model))
	}
	if apiErr.err != nil {
		fields = append(fields, zap.NamedError("cause", apiErr.err))
	}

	if apiErr.Code < http.StatusInternalServerError {
		logger.Warn("request error", fields...)
		return
	}
	logger.Error("request error", fields...)
}
