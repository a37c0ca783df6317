package handlers

import (
	"context"
	"errors"
	"mime/multipart"

	"mystery-box/middleware"
	"mystery-box/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// LogoUploader stores sponsor logos; utils.R2Store implements it.
type LogoUploader interface {
	UploadFile(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
}

// Engine bundles the services behind the HTTP routes.
type Engine struct {
	Games      *services.GameService
	Ledger     *services.ReferralLedger
	Quota      *services.QuotaManager
	Winners    *services.WinnerSelector
	Validation *services.ValidationService
	Logos      LogoUploader // nil disables logo upload

	OperatorToken string
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SetupRoutes mounts the public viewer routes under /api and the operator
// routes under /api/admin.
func SetupRoutes(app *fiber.App, e *Engine) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	admin := api.Group("/admin", middleware.OperatorAuthMiddleware(e.OperatorToken))

	SetupGameRoutes(api, admin, e)
	SetupParticipantRoutes(api, admin, e)
	SetupValidationRoutes(admin, e)
}

func logger() *logrus.Entry {
	return logrus.WithField("module", "http")
}

func errorJSON(c *fiber.Ctx, status int, code string, err error) error {
	return c.Status(status).JSON(ErrorResponse{Error: code, Message: err.Error()})
}

// writeError maps engine errors to status codes. Nothing here is fatal:
// every failure leaves the game retryable.
func writeError(c *fiber.Ctx, err error) error {
	var (
		quotaErr      *services.QuotaExceededError
		incompleteErr *services.IncompleteValidationError
	)
	switch {
	case errors.As(err, &quotaErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "quota_exceeded",
			"message":   err.Error(),
			"accepted":  false,
			"total":     quotaErr.Quota.Total,
			"used":      quotaErr.Quota.Used,
			"remaining": quotaErr.Quota.Remaining,
		})
	case errors.As(err, &incompleteErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "validation_incomplete",
			"message":  err.Error(),
			"degraded": incompleteErr.Degraded,
		})
	case errors.Is(err, services.ErrGameNotAccepting):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "game_not_accepting",
			"message":  err.Error(),
			"accepted": false,
		})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return errorJSON(c, fiber.StatusConflict, "invalid_state_transition", err)
	case errors.Is(err, services.ErrWinnerAlreadySelected):
		return errorJSON(c, fiber.StatusConflict, "winner_already_selected", err)
	case errors.Is(err, services.ErrSubmissionChanged):
		return errorJSON(c, fiber.StatusConflict, "submission_changed", err)
	case errors.Is(err, services.ErrNoEligibleCandidates):
		return errorJSON(c, fiber.StatusConflict, "no_eligible_candidates", err)
	case errors.Is(err, services.ErrGameAlreadyExists):
		return errorJSON(c, fiber.StatusConflict, "game_already_exists", err)
	case errors.Is(err, services.ErrNoActiveGame):
		return errorJSON(c, fiber.StatusNotFound, "no_active_game", err)
	case errors.Is(err, services.ErrGameNotFound):
		return errorJSON(c, fiber.StatusNotFound, "game_not_found", err)
	case errors.Is(err, services.ErrParticipantNotFound):
		return errorJSON(c, fiber.StatusNotFound, "participant_not_found", err)
	case errors.Is(err, services.ErrSubmissionNotFound):
		return errorJSON(c, fiber.StatusNotFound, "submission_not_found", err)
	case errors.Is(err, services.ErrInvalidInput):
		return errorJSON(c, fiber.StatusBadRequest, "invalid_input", err)
	default:
		logger().WithError(err).WithField("path", c.Path()).Error("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "internal_error",
			Message: "internal error, please retry",
		})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_input", Message: msg})
}
