package dexcom

import (
	"fmt"
	"net/http"

	"github.com/tidepool-org/dexcom-sync/common"
)

// Taxonomy is how a vendor HTTP status is reported
type Taxonomy struct {
	Message     string
	UserMessage string
	Retryable   bool
}

var taxonomy = map[int]Taxonomy{
	http.StatusBadRequest:      {"bad request", "Invalid request to Dexcom. Please try again.", false},
	http.StatusUnauthorized:    {"unauthorized", "Authentication expired. Please reconnect.", false},
	http.StatusForbidden:       {"forbidden", "Access denied. Please reconnect your Dexcom account.", false},
	http.StatusNotFound:        {"not found", "Requested Dexcom data was not found.", false},
	http.StatusConflict:        {"conflict", "Conflicting request. Please try again.", false},
	http.StatusTooManyRequests: {"rate limited", "Dexcom rate limit reached. Please try again later.", true},
}

var serverError = Taxonomy{"server error", "Dexcom service is unavailable. Please try again later.", true}
var unknownError = Taxonomy{"unexpected status", "Unexpected Dexcom error.", false}

// Classify maps a vendor HTTP status to its taxonomy entry
func Classify(status int) Taxonomy {
	if t, ok := taxonomy[status]; ok {
		return t
	}
	if status >= 500 && status <= 599 {
		return serverError
	}
	return unknownError
}

// APIError is a non-success answer of the Dexcom API
type APIError struct {
	Operation string
	Status    int
	Body      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dexcom %s returned %d (%s): %s", e.Operation, e.Status, Classify(e.Status).Message, e.Body)
}

// Detailed converts the vendor failure to the error returned to callers.
// The response body stays in the internal message.
func (e *APIError) Detailed() *common.DetailedError {
	t := Classify(e.Status)
	if !t.Retryable {
		return common.FailedPrecondition(t.UserMessage, e.Error())
	}
	err := common.Internal(t.UserMessage, e)
	err.Retryable = true
	return err
}
