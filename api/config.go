// Package api provides an HTTP API server for capturing, searching, and
// curating memory records.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string
}

// ErrorResponse is the JSON error body for failed API requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
