package api

import "fmt"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"error,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docsync api error: code=%s, message=%s, error=%s", e.Code, e.Message, e.Detail)
}
