package common

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

type (
	// HttpResponseWriter used for middleware api functions.
	//
	// Use a string builder, so we can send back a valid error response
	// even if an error occurred after the first write
	//
	// - Uppercase fields are for the handlers functions
	//
	// - Lowercase for the middleware (~private)
	HttpResponseWriter struct {
		URL         *url.URL
		VARS        map[string]string
		TraceID     string
		UserID      string
		Header      http.Header
		WriteBuffer strings.Builder
		StatusCode  int
		Err         *DetailedError
		Size        int
		// Location is sent as the Location header when set (redirections)
		Location string
	}
)

func (res *HttpResponseWriter) Write(v []byte) error {
	size, err := res.WriteBuffer.Write(v)
	res.Size += size
	return err
}

// WriteJSON marshals v into the response buffer
func (res *HttpResponseWriter) WriteJSON(statusCode int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return res.WriteError(Internal("internal server error", err))
	}
	res.WriteHeader(statusCode)
	return res.Write(body)
}

// Redirect answers with a 302 to location, without body
func (res *HttpResponseWriter) Redirect(location string) error {
	res.Location = location
	res.WriteBuffer.Reset()
	res.WriteHeader(http.StatusFound)
	return nil
}

// WriteError final writing to the response
func (res *HttpResponseWriter) WriteError(err *DetailedError) error {
	if err == nil {
		err = &DetailedError{
			Status:          http.StatusInternalServerError,
			Code:            "unknown_error",
			Message:         "Unknown error",
			InternalMessage: "WriteError() with nil error",
		}
	}

	res.Err = err
	res.Err.ID = res.TraceID

	// Discard the previous content write, so we ends up with
	// a valid json returned to the client
	res.WriteBuffer.Reset()
	res.Size = 0

	jsonErr, _ := json.Marshal(err)
	res.WriteHeader(err.Status)
	return res.Write(jsonErr)
}

func (res *HttpResponseWriter) WriteHeader(statusCode int) {
	res.StatusCode = statusCode
}
