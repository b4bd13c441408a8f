package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/converter"
)

// Version is reported by /health.
const Version = "2.0.0"

// Probe checks one dependency needed to serve conversions.
type Probe func(ctx context.Context) error

type healthResponse struct {
	Status           string          `json:"status"`
	Timestamp        string          `json:"timestamp,omitempty"`
	Version          string          `json:"version,omitempty"`
	Features         map[string]bool `json:"features,omitempty"`
	SupportedFormats int             `json:"supported_formats,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// HealthCheck reports service status, features and the number of accepted
// extensions. A failing probe turns the answer into 500 "unhealthy".
//
// @Summary Health check
// @Produce json
// @Success 200 {object} healthResponse
// @Failure 500 {object} healthResponse
// @Router /health [get]
func HealthCheck(loc *time.Location, probes ...Probe) fiber.Handler {
	if loc == nil {
		loc = time.Local
	}
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		for _, probe := range probes {
			if err := probe(ctx); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(healthResponse{Status: "unhealthy", Error: err.Error()})
			}
		}
		return c.Status(fiber.StatusOK).JSON(healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().In(loc).Format(time.RFC3339Nano),
			Version:   Version,
			Features: map[string]bool{
				"file_conversion":    true,
				"url_conversion":     true,
				"zip_processing":     true,
				"session_management": true,
			},
			SupportedFormats: len(converter.AllowedExtensions()),
		})
	}
}

// LivenessProbe answers 200 as long as the process serves requests.
//
// @Summary Liveness probe
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
