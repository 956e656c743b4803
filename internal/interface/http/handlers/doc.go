// Package handlers holds HTTP-facing helpers shared by the API server.
// It currently provides the dependency health checker behind GET /health.
package handlers
