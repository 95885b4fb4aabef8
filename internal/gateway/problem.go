package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wafa/internal/session"
)

// Problem is the JSON error body. Errors lists per-field or per-destination
// failures.
type Problem struct {
	Type   string        `json:"type"`
	Title  string        `json:"title"`
	Detail string        `json:"detail"`
	Status int           `json:"status"`
	Errors []ProblemItem `json:"errors,omitempty"`
}

type ProblemItem struct {
	Detail  string `json:"detail"`
	Pointer string `json:"pointer"`
}

func validationProblem(detail string, items ...ProblemItem) Problem {
	return Problem{
		Type:   "validation-error",
		Title:  "Your request is not valid.",
		Detail: detail,
		Status: http.StatusBadRequest,
		Errors: items,
	}
}

func tooLargeProblem(limit int64) Problem {
	return Problem{
		Type:   "payload-too-large",
		Title:  "Payload too large",
		Detail: "The request body exceeds the max of " + itoa(limit) + " bytes.",
		Status: http.StatusRequestEntityTooLarge,
	}
}

var unknownProblem = Problem{
	Type:   "unknown-error",
	Title:  "Unknown error",
	Detail: "Internal server error caused by an unhandled exception",
	Status: http.StatusInternalServerError,
}

// problemFor maps session errors to 503 and anything else to 500.
func problemFor(err error) Problem {
	var se *session.Error
	if errors.As(err, &se) {
		return Problem{
			Type:   string(se.Kind),
			Title:  se.Title,
			Detail: se.Detail,
			Status: http.StatusServiceUnavailable,
		}
	}
	if session.KindOf(err) == session.KindStorage {
		return Problem{
			Type:   string(session.KindStorage),
			Title:  "Session storage failed.",
			Detail: err.Error(),
			Status: http.StatusServiceUnavailable,
		}
	}
	return unknownProblem
}

func abortProblem(c *gin.Context, p Problem) {
	c.AbortWithStatusJSON(p.Status, p)
}
