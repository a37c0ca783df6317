package handlers

import (
	"mystery-box/services"

	"github.com/gofiber/fiber/v2"
)

type registerResponse struct {
	ParticipantID   string               `json:"participantId"`
	OwnReferralCode string               `json:"ownReferralCode"`
	Created         bool                 `json:"created"`
	ExtraGuesses    int                  `json:"extraGuesses"`
	Referral        services.GrantResult `json:"referral"`
}

type submitGuessRequest struct {
	GameID        string `json:"gameId"`
	ParticipantID string `json:"participantId"`
	Guess         string `json:"guess"`
}

type submitGuessResponse struct {
	Accepted     bool   `json:"accepted"`
	SubmissionID string `json:"submissionId"`
	Total        int    `json:"total"`
	Used         int    `json:"used"`
	Remaining    int    `json:"remaining"`
}

type editSubmissionRequest struct {
	Guess string `json:"guess"`
}

func SetupParticipantRoutes(api fiber.Router, admin fiber.Router, e *Engine) {
	api.Post("/register", func(c *fiber.Ctx) error {
		var req services.RegisterInput
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}

		reg, err := e.Ledger.Register(c.UserContext(), req)
		if err != nil {
			return writeError(c, err)
		}

		status := fiber.StatusOK
		if reg.Created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(registerResponse{
			ParticipantID:   reg.Participant.ID,
			OwnReferralCode: reg.Participant.ReferralCode,
			Created:         reg.Created,
			ExtraGuesses:    reg.Participant.ExtraGuesses,
			Referral:        reg.Referral,
		})
	})

	api.Post("/submit-guess", func(c *fiber.Ctx) error {
		var req submitGuessRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		if req.GameID == "" || req.ParticipantID == "" {
			return badRequest(c, "gameId and participantId are required")
		}

		sub, quota, err := e.Quota.TrySubmit(c.UserContext(), req.ParticipantID, req.GameID, req.Guess)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(submitGuessResponse{
			Accepted:     true,
			SubmissionID: sub.ID,
			Total:        quota.Total,
			Used:         quota.Used,
			Remaining:    quota.Remaining,
		})
	})

	api.Get("/participants/:id/quota", func(c *fiber.Ctx) error {
		quota, err := e.Quota.QuotaFor(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(quota)
	})

	// 🔐 Operator corrections
	admin.Get("/submissions", func(c *fiber.Ctx) error {
		subs, err := e.Games.Submissions(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"submissions": subs, "count": len(subs)})
	})

	admin.Patch("/submissions/:id", func(c *fiber.Ctx) error {
		var req editSubmissionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		sub, err := e.Quota.EditSubmission(c.UserContext(), c.Params("id"), req.Guess)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(sub)
	})

	admin.Delete("/submissions/:id", func(c *fiber.Ctx) error {
		if err := e.Quota.DeleteSubmission(c.UserContext(), c.Params("id")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	admin.Get("/participants/:id/referrals", func(c *fiber.Ctx) error {
		grants, err := e.Ledger.Grants(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"referrals": grants, "count": len(grants)})
	})
}
