package history

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterAPIRoutes mounts read-only history routes on api.
func RegisterAPIRoutes(api fiber.Router, store Store) {
	runs := api.Group("/runs")

	runs.Get("/", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 20)
		if limit <= 0 || limit > 500 {
			limit = 20
		}
		list, err := store.Runs(c.UserContext(), limit)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"runs": list})
	})

	runs.Get("/:id/events", func(c *fiber.Ctx) error {
		events, err := store.Events(c.UserContext(), c.Params("id"))
		if errors.Is(err, ErrRunNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"events": events})
	})
}
