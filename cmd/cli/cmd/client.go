package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crmforge/pkg/api"
)

// ForgeClient handles API calls to the crmforge controller.
type ForgeClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewForgeClient creates a new client with the given base URL.
func NewForgeClient(baseURL string) *ForgeClient {
	return &ForgeClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *ForgeClient) do(method, path string, reqBody, result any) error {
	var body io.Reader
	if reqBody != nil {
		bodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CreateDataset sends POST /datasets to create a dataset and enqueue generation.
func (c *ForgeClient) CreateDataset(req api.CreateDatasetRequest) (*api.CreateDatasetResponse, error) {
	var result api.CreateDatasetResponse
	if err := c.do(http.MethodPost, "/datasets", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InjectDataset sends POST /datasets/{id}/inject to enqueue injection.
func (c *ForgeClient) InjectDataset(datasetID string, req api.InjectDatasetRequest) (*api.InjectDatasetResponse, error) {
	var result api.InjectDatasetResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/datasets/%s/inject", datasetID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetDataset sends GET /datasets/{id} to retrieve dataset details.
func (c *ForgeClient) GetDataset(datasetID string) (*api.DatasetResponse, error) {
	var result api.DatasetResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/datasets/%s", datasetID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CleanupDataset sends DELETE /datasets/{id} to enqueue cleanup.
func (c *ForgeClient) CleanupDataset(datasetID string) (*api.InjectDatasetResponse, error) {
	var result api.InjectDatasetResponse
	if err := c.do(http.MethodDelete, fmt.Sprintf("/datasets/%s", datasetID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /jobs/{id} to retrieve job details.
func (c *ForgeClient) GetJob(jobID string) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/jobs/%s", jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelJob sends POST /jobs/{id}/cancel.
func (c *ForgeClient) CancelJob(jobID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/jobs/%s/cancel", jobID), nil, nil)
}

// CreateSnapshot sends POST /snapshots to capture an injected dataset.
func (c *ForgeClient) CreateSnapshot(req api.CreateSnapshotRequest) (*api.CreateSnapshotResponse, error) {
	var result api.CreateSnapshotResponse
	if err := c.do(http.MethodPost, "/snapshots", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSnapshot sends GET /snapshots/{id} to retrieve snapshot details.
func (c *ForgeClient) GetSnapshot(snapshotID string) (*api.SnapshotResponse, error) {
	var result api.SnapshotResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/snapshots/%s", snapshotID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetGolden sends POST /snapshots/{id}/golden to promote a snapshot.
func (c *ForgeClient) SetGolden(snapshotID string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/snapshots/%s/golden", snapshotID), nil, nil)
}

// ResetEnvironment sends POST /environments/{id}/reset to restore the golden image.
func (c *ForgeClient) ResetEnvironment(environmentID string, req api.ResetEnvironmentRequest) (*api.ResetEnvironmentResponse, error) {
	var result api.ResetEnvironmentResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/environments/%s/reset", environmentID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
