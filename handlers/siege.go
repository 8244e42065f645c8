package handlers

import (
	"errors"
	"log"
	"strings"

	"siege-coordinator/middleware"
	"siege-coordinator/models"
	"siege-coordinator/services"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
)

type SiegeHandler struct {
	Service     *services.SiegeService
	Territories models.TerritoryTable
}

func SetupSiegeRoutes(app *fiber.App, h *SiegeHandler) {
	// organizer routes, gateway auth only
	app.Post("/sieges", h.CreateSiege)
	app.Get("/sieges/:id", h.GetSiege)
	app.Post("/sieges/:id/complete", h.CompleteSiege)
	app.Get("/archive", h.ListArchive)
	app.Get("/stats", h.GetStats)

	// member routes need the chat identity
	member := middleware.MemberContextMiddleware()
	app.Post("/sieges/:id/registrations", member, h.Register)
	app.Delete("/sieges/:id/registrations/me", member, h.Withdraw)
}

type createSiegeRequest struct {
	ID        string `json:"id" form:"id"`
	Date      string `json:"date" form:"date"`
	Territory string `json:"territory" form:"territory"`
	Type      string `json:"type" form:"type"`
	Tier      string `json:"tier" form:"tier"`
	Node      string `json:"node" form:"node"`
	Slots     int    `json:"slots" form:"slots"`
}

type territoryInfo struct {
	Known      bool           `json:"known"`
	Rewards    models.Rewards `json:"rewards"`
	StatLimits string         `json:"stat_limits"`
}

type siegeResponse struct {
	services.Roster
	Filled    string        `json:"summary"`
	Territory territoryInfo `json:"territory_info"`
}

// eventID copies the route param out of fiber's request buffer; the service
// keeps ids as map keys after the request is done.
func eventID(c *fiber.Ctx) string {
	return fiberutils.CopyString(c.Params("id"))
}

func (h *SiegeHandler) CreateSiege(c *fiber.Ctx) error {
	var req createSiegeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}

	// form bodies are decoded without copying
	ev, err := h.Service.Create(c.UserContext(), services.CreateParams{
		ID:        fiberutils.CopyString(req.ID),
		Date:      fiberutils.CopyString(req.Date),
		Territory: fiberutils.CopyString(req.Territory),
		Type:      fiberutils.CopyString(req.Type),
		Tier:      fiberutils.CopyString(req.Tier),
		Node:      fiberutils.CopyString(req.Node),
		Slots:     req.Slots,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ev)
}

func (h *SiegeHandler) GetSiege(c *fiber.Ctx) error {
	roster, err := h.Service.Roster(eventID(c))
	if err != nil {
		return respondError(c, err)
	}

	info := territoryInfo{}
	if t, ok := h.Territories.Lookup(roster.Event.Territory); ok {
		info = territoryInfo{Known: true, Rewards: t.RewardsFor(roster.Event.Tier), StatLimits: t.StatLimits}
	}
	return c.JSON(siegeResponse{Roster: roster, Filled: roster.Summary(), Territory: info})
}

type registerRequest struct {
	Role string `json:"role"`
}

func (h *SiegeHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown role: " + req.Role})
	}

	memberID, name := middleware.Member(c)
	reg, err := h.Service.Register(c.UserContext(), eventID(c), memberID, name, role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(reg)
}

func (h *SiegeHandler) Withdraw(c *fiber.Ctx) error {
	memberID, _ := middleware.Member(c)
	if err := h.Service.Withdraw(c.UserContext(), eventID(c), memberID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type completeRequest struct {
	Result string `json:"result"`
}

func (h *SiegeHandler) CompleteSiege(c *fiber.Ctx) error {
	var req completeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	result, ok := models.ParseResult(req.Result)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown result: " + req.Result})
	}

	rec, err := h.Service.Complete(c.UserContext(), eventID(c), result)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rec)
}

func (h *SiegeHandler) ListArchive(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"records": h.Service.ListArchive()})
}

func (h *SiegeHandler) GetStats(c *fiber.Ctx) error {
	period := c.Query("period", services.AllPeriods)
	return c.JSON(fiber.Map{"period": period, "participants": h.Service.Stats(period)})
}

func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnknownEvent), errors.Is(err, services.ErrNotRegistered):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrCapacityExceeded), errors.Is(err, services.ErrDuplicateEvent):
		status = fiber.StatusConflict
	default:
		log.Printf("❌ [Siege] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
