// handlers/game.go
package handlers

import (
	"mystery-box/models"
	"mystery-box/services"
	"mystery-box/utils"

	"github.com/gofiber/fiber/v2"
)

const maxLogoSize = 2 * 1024 * 1024

type drawWinnerRequest struct {
	FallbackToAll  bool `json:"fallbackToAll"`
	AcceptDegraded bool `json:"acceptDegraded"`
	Confirm        bool `json:"confirm"`
}

func SetupGameRoutes(api fiber.Router, admin fiber.Router, e *Engine) {
	// 🔓 Viewer polling
	api.Get("/game", func(c *fiber.Ctx) error {
		snap, err := e.Games.PublicSnapshot(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(snap)
	})

	// 🔐 Operator lifecycle
	admin.Get("/game", func(c *fiber.Ctx) error {
		snap, err := e.Games.OperatorSnapshot(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"game": snap})
	})

	admin.Post("/game", func(c *fiber.Ctx) error {
		var req services.CreateGameInput
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		game, err := e.Games.CreateGame(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}
		return operatorGame(c, e, game, fiber.StatusCreated)
	})

	transition := func(fn func(c *fiber.Ctx) (*models.Game, error)) fiber.Handler {
		return func(c *fiber.Ctx) error {
			game, err := fn(c)
			if err != nil {
				return writeError(c, err)
			}
			return operatorGame(c, e, game, fiber.StatusOK)
		}
	}

	admin.Post("/open-submissions", transition(func(c *fiber.Ctx) (*models.Game, error) {
		return e.Games.OpenSubmissions(c.UserContext())
	}))
	admin.Post("/reveal-clue", transition(func(c *fiber.Ctx) (*models.Game, error) {
		return e.Games.RevealClue(c.UserContext())
	}))
	admin.Post("/close-submissions", transition(func(c *fiber.Ctx) (*models.Game, error) {
		return e.Games.CloseSubmissions(c.UserContext())
	}))

	admin.Post("/draw-winner", func(c *fiber.Ctx) error {
		var req drawWinnerRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid JSON body")
			}
		}
		if req.FallbackToAll && !req.Confirm {
			return badRequest(c, "drawing among all participants must be confirmed")
		}
		if req.AcceptDegraded && !req.Confirm {
			return badRequest(c, "drawing with incomplete validation must be confirmed")
		}

		game, _, err := e.Winners.DrawWinner(c.UserContext(), services.DrawOptions{
			FallbackToAll:  req.FallbackToAll,
			AcceptDegraded: req.AcceptDegraded,
		})
		if err != nil {
			return writeError(c, err)
		}
		return operatorGame(c, e, game, fiber.StatusOK)
	})

	admin.Post("/reset-game", func(c *fiber.Ctx) error {
		if err := e.Games.Reset(c.UserContext()); err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"game": nil, "reset": true})
	})

	admin.Get("/candidates", func(c *fiber.Ctx) error {
		pool, err := e.Winners.PreviewCandidates(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(pool)
	})

	admin.Post("/sponsor/logo", func(c *fiber.Ctx) error {
		if e.Logos == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
				Error:   "logo_storage_disabled",
				Message: "sponsor logo storage is not configured",
			})
		}
		logoFile, err := c.FormFile("logo")
		if err != nil {
			return badRequest(c, "logo file is required")
		}
		if logoFile.Size > maxLogoSize {
			return badRequest(c, "logo too large (max 2MB)")
		}

		url, err := e.Logos.UploadFile(c.UserContext(), logoFile, utils.ObjectKey("logos", logoFile.Filename, ".png"))
		if err != nil {
			return writeError(c, err)
		}
		game, err := e.Games.SetSponsorLogo(c.UserContext(), url)
		if err != nil {
			return writeError(c, err)
		}
		return operatorGame(c, e, game, fiber.StatusOK)
	})
}

func operatorGame(c *fiber.Ctx, e *Engine, game *models.Game, status int) error {
	view, err := e.Games.OperatorView(c.UserContext(), game)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(status).JSON(fiber.Map{"game": view})
}
