package handlers

import (
	"net/http"

	"marketplace-svc/apperror"
	"marketplace-svc/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "marketplace-svc"

// respondError writes err to the client. Domain rejections keep their status
// and message; anything else is logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, span trace.Span, op string, err error) {
	if appErr, ok := apperror.As(err); ok {
		c.JSON(appErr.Status, gin.H{"status": "fail", "error": appErr.Message})
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("Request failed",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.String("op", op),
		zap.String("user_id", middleware.UserID(c)),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": apperror.GenericMessage})
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "fail", "error": err.Error()})
}
