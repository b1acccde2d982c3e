package router

import (
	"chat-service/controller"
	"chat-service/middleware"
	"chat-service/socketio"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// RestDeps carries the constructed stores and hub the handlers need.
type RestDeps struct {
	Hub           *socketio.Hub
	Conversations *controller.ConversationDeps
	Messages      *controller.MessageDeps
	Admin         *controller.AdminDeps
}

func Rest(app *fiber.App, deps *RestDeps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.JSON(deps.Hub.Snapshot())
	})

	api := app.Group("/v1", logger.New())

	// Auth
	auth := api.Group("/auth")
	auth.Post("/signup", controller.AuthSignup)
	auth.Post("/signin", controller.AuthSignin)
	auth.Post("/token/renew", controller.AuthTokenRenew)

	// Conversations
	conversations := api.Group("/conversations", middleware.JWT())
	conversations.Get("", deps.Conversations.ConversationList)
	conversations.Post("", deps.Conversations.ConversationCreate)
	conversations.Put("/:id/archive", deps.Conversations.ConversationArchive)
	conversations.Get("/:id/messages", deps.Messages.MessageList)
	conversations.Post("/:id/messages", deps.Messages.MessageCreate)

	// Search
	search := api.Group("/search", middleware.JWT())
	search.Get("/messages", deps.Messages.MessageSearch)

	// Messages
	messages := api.Group("/messages", middleware.JWT())
	messages.Patch("/:id", deps.Messages.MessageEdit)
	messages.Delete("/:id", deps.Messages.MessageDelete)
	messages.Post("/:id/read", deps.Messages.MessageRead)
	messages.Post("/:id/reactions", deps.Messages.ReactionAdd)
	messages.Delete("/:id/reactions/:emoji", deps.Messages.ReactionRemove)

	// User
	user := api.Group("/user", middleware.JWT())
	user.Get("/profile", controller.UserProfile)

	// Admin
	admin := api.Group("/admin", middleware.JWT(), middleware.RBAC())
	admin.Get("/delivery/dead-letters", deps.Admin.AdminDeadLetters)
	admin.Get("/audit", deps.Admin.AdminAuditLog)
}
