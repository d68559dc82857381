package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates via token query parameter inside the
		// handler; browsers cannot set headers on the WS handshake.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Farm hierarchy
			r.Route("/farms", func(r chi.Router) {
				r.Get("/", s.handleListFarms)
				r.Get("/{id}", s.handleGetFarm)
				r.Get("/{id}/rooms", s.handleListRooms)
				r.Get("/{id}/notifications", s.handleListFarmNotifications)
			})

			// Room-scoped views
			r.Route("/rooms/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRoom)
				r.Get("/devices", s.handleListRoomDevices)
				r.Get("/readings/latest", s.handleLatestReadings)
				r.Post("/evaluate", s.handleEvaluateRoom)
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/readings", s.handleDeviceReadings)
					r.Get("/commands", s.handleListDeviceCommands)
					r.Post("/commands", s.handleIssueCommand)
				})
			})

			// Command lookup
			r.Get("/commands/{id}", s.handleGetCommand)

			// Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.handleListNotifications)
				r.Post("/{id}/ack", s.handleAckNotification)
			})
		})
	})

	return r
}
