package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/quality"
)

// Monitor is what the ingest API needs from the service layer.
type Monitor interface {
	Ingest(ctx context.Context, device string, s quality.Sample) (domain.Reading, error)
	Snapshot(device string) (domain.Reading, bool)
	History(device string) []domain.Reading
	Pins(ctx context.Context, device string) []domain.Pin
	Reset(ctx context.Context, device, password string) error
}

func Register(app *fiber.App, mon Monitor) {
	g := app.Group("/")

	g.Post("data", func(c *fiber.Ctx) error {
		device, sample, err := parseSample(c)
		if err != nil {
			return fail(c, err)
		}
		r, err := mon.Ingest(c.UserContext(), device, sample)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"status": "received", "reading": r})
	})

	g.Get("latest", func(c *fiber.Ctx) error {
		r, ok := mon.Snapshot(c.Query("device"))
		if !ok {
			return c.JSON(fiber.Map{})
		}
		return c.JSON(r)
	})

	g.Get("history", func(c *fiber.Ctx) error {
		return c.JSON(mon.History(c.Query("device")))
	})

	g.Get("pins", func(c *fiber.Ctx) error {
		return c.JSON(mon.Pins(c.UserContext(), c.Query("device")))
	})

	g.Post("reset", func(c *fiber.Ctx) error {
		var req struct {
			Device   string `json:"device" form:"device" query:"device"`
			Password string `json:"password" form:"password" query:"password"`
		}
		if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if req.Device == "" {
			req.Device = c.Query("device")
		}
		if req.Password == "" {
			req.Password = c.Query("password")
		}

		if err := mon.Reset(c.UserContext(), req.Device, req.Password); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"status": "reset"})
	})
}

// parseSample reads a sample from a JSON body or, for any other content
// type, from form fields and the query string.
func parseSample(c *fiber.Ctx) (string, quality.Sample, error) {
	if c.Is("json") {
		return quality.DecodeJSON(c.Body())
	}
	s := quality.Sample{
		PH:        c.FormValue("ph"),
		TDS:       c.FormValue("tds"),
		Temp:      c.FormValue("temp"),
		Turbidity: c.FormValue("turbidity"),
		Lat:       c.FormValue("lat"),
		Lng:       c.FormValue("lng"),
	}
	return c.FormValue("device"), s, nil
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusOf(err)).JSON(fiber.Map{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidReading):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrDownstreamWrite):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
