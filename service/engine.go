package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/config"
)

// JobState is the engine-side lifecycle state of an extraction job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobDone      JobState = "done"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
	JobExpired   JobState = "expired"
)

// Terminal reports whether the state will never change again.
func (s JobState) Terminal() bool {
	switch s {
	case JobDone, JobFailed, JobCancelled, JobExpired:
		return true
	}
	return false
}

// JobStatus is one poll observation.
type JobStatus struct {
	State    JobState
	ErrorMsg string
}

// Engine abstracts the external document-intelligence service. The provider
// is volatile and rate-limited, so everything above this interface treats it
// as an unreliable collaborator: register a transient context for the source
// document, submit a job against it, poll, fetch the raw text output, and
// always release the context afterwards.
type Engine interface {
	Register(ctx context.Context, fileURL, filename string) (contextID string, err error)
	Submit(ctx context.Context, contextID, instructions string) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (JobStatus, error)
	Fetch(ctx context.Context, jobID string) (string, error)
	Cancel(ctx context.Context, jobID string) error
	Release(ctx context.Context, contextID string) error
}

// DocintelClient talks to the docintel HTTP API. Every response uses the
// {code, msg, data} envelope; code != 0 is an API-level error.
type DocintelClient struct {
	config     *config.EngineConfig
	httpClient *http.Client
}

func NewDocintelClient(cfg *config.EngineConfig) *DocintelClient {
	return &DocintelClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type engineEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type registerRequest struct {
	FileURL  string `json:"file_url"`
	Filename string `json:"filename"`
}

type registerData struct {
	ContextID string `json:"context_id"`
}

type submitRequest struct {
	ContextID    string `json:"context_id"`
	Instructions string `json:"instructions"`
	Model        string `json:"model"`
}

type submitData struct {
	JobID string `json:"job_id"`
}

type pollData struct {
	State    string `json:"state"`
	ErrorMsg string `json:"err_msg,omitempty"`
}

type fetchData struct {
	Output string `json:"output"`
}

// Register creates a transient engine-side context for the source document.
func (c *DocintelClient) Register(ctx context.Context, fileURL, filename string) (string, error) {
	var data registerData
	err := c.call(ctx, http.MethodPost, "/v1/contexts", registerRequest{
		FileURL:  fileURL,
		Filename: filename,
	}, &data)
	if err != nil {
		return "", err
	}
	if data.ContextID == "" {
		return "", fmt.Errorf("docintel: empty context id")
	}
	return data.ContextID, nil
}

// Submit starts one extraction job scoped to a registered context.
func (c *DocintelClient) Submit(ctx context.Context, contextID, instructions string) (string, error) {
	var data submitData
	err := c.call(ctx, http.MethodPost, "/v1/jobs", submitRequest{
		ContextID:    contextID,
		Instructions: instructions,
		Model:        c.config.Model,
	}, &data)
	if err != nil {
		return "", err
	}
	if data.JobID == "" {
		return "", fmt.Errorf("docintel: empty job id")
	}
	return data.JobID, nil
}

// Poll queries the state of a job.
func (c *DocintelClient) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	var data pollData
	err := c.call(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &data)
	if err != nil {
		return JobStatus{}, err
	}
	return JobStatus{State: JobState(data.State), ErrorMsg: data.ErrorMsg}, nil
}

// Fetch retrieves the raw text output of a finished job.
func (c *DocintelClient) Fetch(ctx context.Context, jobID string) (string, error) {
	var data fetchData
	err := c.call(ctx, http.MethodGet, "/v1/jobs/"+jobID+"/result", nil, &data)
	if err != nil {
		return "", err
	}
	return data.Output, nil
}

// Cancel asks the engine to stop an in-flight job.
func (c *DocintelClient) Cancel(ctx context.Context, jobID string) error {
	return c.call(ctx, http.MethodDelete, "/v1/jobs/"+jobID, nil, nil)
}

// Release discards a transient context and the engine-side copy of the file.
func (c *DocintelClient) Release(ctx context.Context, contextID string) error {
	return c.call(ctx, http.MethodDelete, "/v1/contexts/"+contextID, nil, nil)
}

func (c *DocintelClient) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.APIURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	req.Header.Set("Accept", "*/*")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope engineEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w, body: %s", err, string(respBody))
	}

	if envelope.Code != 0 {
		return fmt.Errorf("docintel API error: %s", envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}
