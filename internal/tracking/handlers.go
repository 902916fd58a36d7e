package tracking

import (
	"errors"

	"backend-routerecorder/internal/route"

	"github.com/gofiber/fiber/v2"
)

// SnapshotSource serves the most recent in-memory route.
type SnapshotSource interface {
	Get() route.Route
}

// GateResolver picks the permission gate for a request.
type GateResolver func(c *fiber.Ctx) PermissionGate

func RegisterRoutes(r fiber.Router, ctl *Controller, snapshots SnapshotSource, deliverer Deliverer, gateFor GateResolver, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		err := ctl.Start(c.UserContext(), gateFor(c))
		switch {
		case errors.Is(err, ErrPermissionDenied):
			return fiber.NewError(fiber.StatusForbidden, "Permission to access location was denied")
		case errors.Is(err, ErrAlreadyTracking):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(ctl.Status())
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		final, err := ctl.Stop(c.UserContext())
		if errors.Is(err, ErrNotTracking) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"points":   final,
			"polyline": route.Project(final),
		})
	})

	if deliverer != nil {
		r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
			var event TaskEvent
			if err := c.BodyParser(&event); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			err := deliverer.Deliver(c.UserContext(), TaskName, event)
			if errors.Is(err, ErrTaskNotRegistered) {
				return fiber.NewError(fiber.StatusConflict, "tracking not active")
			}
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			return c.SendStatus(fiber.StatusAccepted)
		})
	}

	r.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(ctl.Status())
	})

	r.Get("/route", func(c *fiber.Ctx) error {
		current := snapshots.Get()
		return c.JSON(fiber.Map{
			"points": current,
			"region": route.RegionFor(current),
		})
	})

	r.Get("/polyline", func(c *fiber.Ctx) error {
		current := snapshots.Get()
		switch c.Query("format", "json") {
		case "json":
			return c.JSON(route.Project(current))
		case "geojson":
			body, err := route.GeoJSON(current)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			c.Set(fiber.HeaderContentType, "application/geo+json")
			return c.Send(body)
		case "kml":
			body, err := route.KML(current, "Recorded route")
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			c.Set(fiber.HeaderContentType, "application/vnd.google-earth.kml+xml")
			return c.Send(body)
		case "gpx":
			body, err := route.GPX(current, "Recorded route")
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			c.Set(fiber.HeaderContentType, "application/gpx+xml")
			return c.Send(body)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "format must be json, geojson, kml or gpx")
		}
	})
}
