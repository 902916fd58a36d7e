package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/devices", func(c *fiber.Ctx) error {
		var req RegisterDeviceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		device, secret, err := svc.RegisterDevice(c.UserContext(), req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		tokens, err := svc.IssueToken(device.ID, device.LocationPermission)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"device": device, "secret": secret, "tokens": tokens})
	})

	r.Post("/token", func(c *fiber.Ctx) error {
		var req TokenRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		resp, err := svc.Authenticate(c.UserContext(), req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(resp)
	})

	r.Put("/permission", authMiddleware, func(c *fiber.Ctx) error {
		claims, ok := ClaimsFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "token invalid")
		}
		var req PermissionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		resp, err := svc.UpdatePermission(c.UserContext(), claims.DeviceID, req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(resp)
	})

	r.Get("/jwt/verify", authMiddleware, func(c *fiber.Ctx) error {
		claims, _ := ClaimsFrom(c)
		return c.JSON(fiber.Map{"device_id": claims.DeviceID, "location_permission": claims.LocationPermission})
	})
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}
