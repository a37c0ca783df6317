package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type validateGuessRequest struct {
	Guess         string `json:"guess"`
	CorrectAnswer string `json:"correctAnswer"`
}

type validateGuessResponse struct {
	IsCorrect bool   `json:"isCorrect"`
	Source    string `json:"source"`
	Rule      string `json:"rule"`
	Degraded  bool   `json:"degraded"`
}

// SetupValidationRoutes exposes the validator to operator tooling only.
func SetupValidationRoutes(admin fiber.Router, e *Engine) {
	admin.Post("/validate-guess", func(c *fiber.Ctx) error {
		var req validateGuessRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		if strings.TrimSpace(req.CorrectAnswer) == "" {
			return badRequest(c, "correctAnswer is required")
		}

		v := e.Validation.Validate(c.UserContext(), req.Guess, req.CorrectAnswer)
		return c.JSON(validateGuessResponse{
			IsCorrect: v.IsCorrect,
			Source:    v.Source,
			Rule:      v.Rule,
			Degraded:  v.Degraded,
		})
	})
}
