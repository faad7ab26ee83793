package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	cerr "github.com/openbraininstitute/entitykit/cmd/entity/errors"
)

type MessageFor map[StatusCodeRange]string

// nexusError is the error payload of Nexus.
type nexusError struct {
	Type    string `json:"@type"`
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// unmarshal http response which has json content.
//
// args:
//   - resp: http response to be processed.
//   - v: value which response should be.
//   - messageFor: title of error message for HTTP status code range.
//
// return:
//
//	error if...
//	- can not read response body
//	- response body is not shaped of v
//	- status code is not 2xx
func unmarshalJsonResponse[T any](resp *http.Response, v *T, messageFor MessageFor) error {
	if StatusCodeRangeOf(resp) == Status2xx {
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if err := dec.Decode(v); err != nil {
			message := fmt.Sprintf("unexpected error: %s (status code = %d)", err.Error(), resp.StatusCode)
			return cerr.NewCuiError(message, cerr.WithCause(err))
		}
		return nil
	}
	return errorResponse(resp, messageFor, nil)
}

// errorResponse builds an error from a failed response.
//
// When cause is not nil, the error wraps it.
func errorResponse(resp *http.Response, messageFor MessageFor, cause error) error {
	scr := StatusCodeRangeOf(resp)
	message, ok := messageFor[scr]
	if !ok {
		message = scr.String()
	}
	message = fmt.Sprintf("%s (status code = %d)", message, resp.StatusCode)

	opts := []cerr.CuiErrorOption{}
	if cause != nil {
		opts = append(opts, cerr.WithCause(cause))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if cause == nil {
			opts = append(opts, cerr.WithCause(err))
		}
		return cerr.NewCuiError(
			fmt.Sprintf("%s\ncannot read server message: %s", message, err.Error()),
			opts...,
		)
	}

	detail := parseErrorMessage(body)
	if detail == "" {
		return cerr.NewCuiError(message, opts...)
	}
	return cerr.NewCuiError(
		message,
		append(opts, cerr.WithDetail(func(summary string) (string, error) {
			return summary + "\n" + detail, nil
		}))...,
	)
}

// parseErrorMessage extracts a human readable message from an error payload.
//
// When the payload is not a Nexus error, it is returned as it is.
func parseErrorMessage(body []byte) string {
	ne := new(nexusError)
	if err := json.Unmarshal(body, ne); err == nil && ne.Reason != "" {
		msg := ne.Reason
		if ne.Type != "" {
			msg = ne.Type + ": " + msg
		}
		if ne.Details != "" {
			msg += "\n" + ne.Details
		}
		return msg
	}
	return strings.TrimSpace(string(body))
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
