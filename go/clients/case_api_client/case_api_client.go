package case_api_client

import (
	"errors"
	"fmt"

	"github.com/mcdev12/caseroll/go/clients"
	"github.com/tidwall/gjson"
)

// APIError is a business failure reported inside a 2xx response,
// e.g. {"success": false, "error": "Insufficient balance"}.
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// ErrMalformedResponse is returned when a body is not a JSON object.
var ErrMalformedResponse = errors.New("malformed API response")

type CaseApiClient struct {
	*clients.BaseClient
}

func NewCaseApiClient(baseURL string) *CaseApiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CaseApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}

// checkEnvelope rejects bodies that carry "success": false. Endpoints that do
// not send a success flag at all pass through.
func checkEnvelope(endpoint string, body []byte) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("%s: %w", endpoint, ErrMalformedResponse)
	}
	success := gjson.GetBytes(body, "success")
	if success.Exists() && !success.Bool() {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{Endpoint: endpoint, Message: msg}
	}
	return nil
}
