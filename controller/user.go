package controller

import (
	"chat-service/database"
	"chat-service/model"

	"github.com/gofiber/fiber/v2"
)

func UserProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err)
	}

	userModel := new(model.User)
	if err := database.Postgres.First(&userModel, userID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Internal server error",
			"data":    nil,
		})
	}

	return ok(c, fiber.Map{
		"id":       userModel.ID,
		"created":  userModel.CreatedAt.Unix(),
		"username": userModel.Username,
		"email":    userModel.Email,
		"role":     userModel.Role,
	})
}
