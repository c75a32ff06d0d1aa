package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"chit-chat/internal/utils"

	"github.com/go-playground/validator/v10"
)

// FormError is returned with status 200 when a submitted form is rejected.
// Fields echoes what was submitted so the page can refill the inputs.
type FormError struct {
	Fields  map[string]string `json:"fields,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Result is the body of every action response.
type Result struct {
	OK    bool        `json:"ok"`
	Error *FormError  `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("HTTP Handler: Failed to encode response: %v", err)
	}
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Result{OK: true, Data: data})
}

func writeFormError(w http.ResponseWriter, fe *FormError) {
	writeJSON(w, http.StatusOK, Result{OK: false, Error: fe})
}

// fieldMessages turns validator failures into one message per form field.
func fieldMessages(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = validationMessage(fe)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "uuid":
		return "Invalid " + field
	case "oneof":
		return "Unknown " + field
	default:
		return "Invalid " + field
	}
}

// handleError maps engine errors onto responses. Rejected input is a form
// error, a missing or foreign resource sends the user back to fallback and
// an auth failure to the login page. Any other AppError gets the status of
// its code.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, fallback string, fields map[string]string) {
	appErr, ok := utils.AsAppError(err)
	if ok {
		switch {
		case appErr.Code == utils.ErrInvalidInput,
			appErr.Code == utils.ErrInvalidCredentials,
			appErr.Code == utils.ErrUserAlreadyExists,
			appErr.Code == utils.ErrAlreadyFollowing:
			writeFormError(w, &FormError{Fields: fields, Message: appErr.Message})
			return
		case utils.IsNotFound(appErr), appErr.Code == utils.ErrNotConversationMember:
			http.Redirect(w, r, fallback, http.StatusSeeOther)
			return
		case utils.IsAuthError(appErr):
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
	}

	status, message := http.StatusInternalServerError, "Internal server error"
	if ok {
		status = utils.AppErrorToHTTPStatus(appErr.Code)
		if status < http.StatusInternalServerError {
			message = appErr.Message
		}
	}

	log.Printf("HTTP Handler: %s %s failed (%d): %v", r.Method, r.URL.Path, status, err)
	if s.Metrics != nil && status >= http.StatusInternalServerError {
		s.Metrics.IncrementErrors()
	}
	writeJSON(w, status, Result{OK: false, Error: &FormError{Message: message}})
}
