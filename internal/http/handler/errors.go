package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/clicklink/internal/app/apperr"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// writeError answers with the status that matches err's kind. Internal
// failures are logged and their detail is not echoed to the client.
func writeError(c *fiber.Ctx, logger *zap.Logger, msg string, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	if status >= fiber.StatusInternalServerError {
		logger.Error(msg,
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("path", c.Path()),
		)
		return c.Status(status).JSON(ErrorResponse{Error: msg, Kind: kind})
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Kind: kind})
}
