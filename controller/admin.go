package controller

import (
	"chat-service/delivery"
	"chat-service/store"

	"github.com/gofiber/fiber/v2"
)

// AdminDeps backs the operator inspection endpoints guarded by RBAC.
type AdminDeps struct {
	DeadLetters *delivery.GormDeadLetters
	Audit       *store.AuditSink
}

// AdminDeadLetters lists delivery jobs that exhausted their attempt budget.
func (d *AdminDeps) AdminDeadLetters(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	letters, err := d.DeadLetters.List(c.Context(), limit)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, letters)
}

// AdminAuditLog lists recent audit entries.
func (d *AdminDeps) AdminAuditLog(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	entries, err := d.Audit.List(c.Context(), limit)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entries)
}
