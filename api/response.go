package api

import (
	"encoding/json"
	"net/http"
)

// Response is the standard response structure for all API responses
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SendSuccess sends a successful JSON response
func SendSuccess(w http.ResponseWriter, data interface{}, message string) {
	respond(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendError sends an error JSON response
func SendError(w http.ResponseWriter, statusCode int, errorMsg string, message string) {
	respond(w, statusCode, Response{
		Success: false,
		Message: message,
		Error:   errorMsg,
	})
}

// SendNotFound sends a 404 Not Found response
func SendNotFound(w http.ResponseWriter, resource string) {
	SendError(w, http.StatusNotFound, "Resource not found", resource+" not found")
}

// SendInternalServerError sends a 500 Internal Server Error response
func SendInternalServerError(w http.ResponseWriter) {
	SendError(w, http.StatusInternalServerError,
		"An internal server error occurred",
		"Something went wrong. Please try again later.")
}

func respond(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
	}
}
