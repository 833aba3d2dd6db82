package case_api_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mcdev12/caseroll/go/internal/models"
)

type CasesResponse struct {
	Success bool          `json:"success"`
	Cases   []models.Case `json:"cases"`
}

type CaseItemsResponse struct {
	Success bool              `json:"success"`
	Items   []models.CaseItem `json:"items"`
}

type OpenCaseRequest struct {
	CaseID int64 `json:"case_id"`
	UserID int64 `json:"user_id"`
}

type OpenCaseResponse struct {
	Success bool `json:"success"`
	models.OpenResult
}

type freeCaseResponse struct {
	Available        *bool   `json:"available"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func (c *CaseApiClient) ListCases(ctx context.Context) ([]models.Case, error) {
	body, err := c.Get(ctx, CasesListEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	if err := checkEnvelope(CasesListEndpoint, body); err != nil {
		return nil, err
	}

	var response CasesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return response.Cases, nil
}

// CaseItems returns the ordered prize pool of a case.
func (c *CaseApiClient) CaseItems(ctx context.Context, caseID int64) ([]models.CaseItem, error) {
	endpoint := fmt.Sprintf(CaseItemsEndpoint, caseID)
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get case items: %w", err)
	}
	if err := checkEnvelope(endpoint, body); err != nil {
		return nil, err
	}

	var response CaseItemsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return response.Items, nil
}

// OpenCase asks the server to open a case. The result is authoritative.
func (c *CaseApiClient) OpenCase(ctx context.Context, caseID, userID int64) (models.OpenResult, error) {
	payload, err := json.Marshal(OpenCaseRequest{CaseID: caseID, UserID: userID})
	if err != nil {
		return models.OpenResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.Post(ctx, CaseOpenEndpoint, bytes.NewReader(payload))
	if err != nil {
		return models.OpenResult{}, fmt.Errorf("failed to open case: %w", err)
	}
	if err := checkEnvelope(CaseOpenEndpoint, body); err != nil {
		return models.OpenResult{}, err
	}

	var response OpenCaseResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return models.OpenResult{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return response.OpenResult, nil
}

// FreeCaseCheck returns the authoritative free case timer for a user.
// A missing "available" flag means available; fractional seconds round up.
func (c *CaseApiClient) FreeCaseCheck(ctx context.Context, userID int64) (models.FreeTimerState, error) {
	endpoint := fmt.Sprintf(FreeCaseCheckEndpoint, userID)
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return models.FreeTimerState{}, fmt.Errorf("failed to check free case: %w", err)
	}
	if err := checkEnvelope(endpoint, body); err != nil {
		return models.FreeTimerState{}, err
	}

	var response freeCaseResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return models.FreeTimerState{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	available := response.Available == nil || *response.Available
	if available {
		return models.FreeTimerState{Available: true}, nil
	}
	remaining := int(math.Ceil(response.RemainingSeconds))
	if remaining < 0 {
		remaining = 0
	}
	return models.FreeTimerState{Available: false, RemainingSeconds: remaining}, nil
}
