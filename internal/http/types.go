// Package http provides the admin HTTP surface for lexorch.
package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
