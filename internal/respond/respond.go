package respond

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrorResponse is the uniform error envelope. Internal detail never rides
// in ErrorText; handlers log it and send a generic message.
type ErrorResponse struct {
	HTTPStatusCode int    `json:"-"`
	ErrorText      string `json:"error"`
}

func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(msg string) render.Renderer {
	if msg == "" {
		msg = "invalid request"
	}
	return &ErrorResponse{HTTPStatusCode: http.StatusBadRequest, ErrorText: msg}
}

func ErrUnauthorized() render.Renderer {
	return &ErrorResponse{HTTPStatusCode: http.StatusUnauthorized, ErrorText: "authentication required"}
}

func ErrForbidden(msg string) render.Renderer {
	if msg == "" {
		msg = "forbidden"
	}
	return &ErrorResponse{HTTPStatusCode: http.StatusForbidden, ErrorText: msg}
}

func ErrNotFound(msg string) render.Renderer {
	if msg == "" {
		msg = "not found"
	}
	return &ErrorResponse{HTTPStatusCode: http.StatusNotFound, ErrorText: msg}
}

func ErrInternal() render.Renderer {
	return &ErrorResponse{HTTPStatusCode: http.StatusInternalServerError, ErrorText: "internal server error"}
}

// Error writes an error renderer.
func Error(w http.ResponseWriter, r *http.Request, e render.Renderer) {
	_ = render.Render(w, r, e)
}

// JSON responds with 200 OK and the payload.
func JSON(w http.ResponseWriter, r *http.Request, v any) {
	render.JSON(w, r, v)
}

// Created responds with 201 Created and the payload.
func Created(w http.ResponseWriter, r *http.Request, v any) {
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, v)
}

// Accepted responds with 202 Accepted and the payload.
func Accepted(w http.ResponseWriter, r *http.Request, v any) {
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, v)
}
