package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/lever-lab/backend/internal/metrics"
)

type Handlers struct {
	Chat       *ChatHandler
	WebSocket  *WebSocketHandler
	Data       *DataHandler
	Dashboard  *DashboardHandler
	Simulation *SimulationHandler
	Analytics  *AnalyticsHandler
}

// Register mounts every endpoint on app. Chat routes take the extra
// middleware (rate limiting).
func Register(app *fiber.App, h Handlers, chatMiddleware ...fiber.Handler) {
	api := app.Group("/api")

	api.Get("/health", h.Data.Health)
	api.Get("/data/summary", h.Data.Summary)

	chatGroup := api.Group("/chat", chatMiddleware...)
	chatGroup.Post("/start", h.Chat.StartChat)
	chatGroup.Post("/message", h.Chat.SendMessage)
	chatGroup.Get("/history/:id", h.Chat.GetHistory)

	chatGroup.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	chatGroup.Get("/ws", websocket.New(h.WebSocket.HandleConnection))

	dashboard := api.Group("/dashboard")
	dashboard.Get("/filter-options", h.Dashboard.FilterOptions)
	dashboard.Get("/timeline", h.Dashboard.Timeline)
	dashboard.Get("/results", h.Dashboard.Results)

	sim := api.Group("/simulation")
	sim.Post("/calculate", h.Simulation.Calculate)
	sim.Get("/ols-params", h.Simulation.OLSParams)
	sim.Get("/capex-fee", h.Simulation.CapexFee)

	analytics := api.Group("/analytics")
	analytics.Get("/sessions", h.Analytics.Sessions)
	analytics.Post("/cache/clear", h.Analytics.ClearCache)

	app.Get("/metrics", metrics.MetricsHandler())
}
