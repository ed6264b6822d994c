package vindi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error is returned when the gateway answers with a non 2xx status.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: gateway responded with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

type errorResponse struct {
	Errors []struct {
		ID        string `json:"id"`
		Parameter string `json:"parameter"`
		Message   string `json:"message"`
	} `json:"errors"`
	Message string `json:"message"`
}

// vendorMessage extracts the vendor supplied error message from a response body.
func vendorMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}

	var msgs []string
	for _, e := range resp.Errors {
		switch {
		case e.Message != "" && e.Parameter != "":
			msgs = append(msgs, e.Parameter+" "+e.Message)
		case e.Message != "":
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) != 0 {
		return strings.Join(msgs, "; ")
	}
	return resp.Message
}
