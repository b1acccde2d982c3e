package controller

import (
	"errors"
	"strconv"

	"chat-service/store"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// currentUserID extracts the authenticated user id put in Locals by the JWT
// middleware.
func currentUserID(c *fiber.Ctx) (uint, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return 0, store.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, store.ErrUnauthorized
	}
	raw, ok := claims["id"].(string)
	if !ok {
		return 0, store.ErrUnauthorized
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, store.ErrUnauthorized
	}
	return uint(id), nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0, store.ErrInvalidInput
	}
	return uint(id), nil
}

// fail maps the error taxonomy onto HTTP statuses in the standard envelope.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, store.ErrUnauthorized):
		status, message = fiber.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, store.ErrForbidden):
		status, message = fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, store.ErrInvalidInput):
		status, message = fiber.StatusBadRequest, "Review your input"
	case errors.Is(err, store.ErrNotFound):
		status, message = fiber.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrTransient):
		status, message = fiber.StatusServiceUnavailable, "Temporarily unavailable"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data":    nil,
	})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    data,
	})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    data,
	})
}
