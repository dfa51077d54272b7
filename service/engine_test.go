package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/config"
)

func newDocintelServer(t *testing.T) (*httptest.Server, *DocintelClient) {
	t.Helper()
	mux := http.NewServeMux()

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"code": 401, "msg": "unauthorized"}`)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("POST /v1/contexts", authed(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FileURL  string `json:"file_url"`
			Filename string `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileURL == "" {
			fmt.Fprint(w, `{"code": 400, "msg": "file_url required"}`)
			return
		}
		fmt.Fprint(w, `{"code": 0, "msg": "ok", "data": {"context_id": "ctx-42"}}`)
	}))
	mux.HandleFunc("POST /v1/jobs", authed(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ContextID    string `json:"context_id"`
			Instructions string `json:"instructions"`
			Model        string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			fmt.Fprint(w, `{"code": 400, "msg": "bad request"}`)
			return
		}
		if req.ContextID != "ctx-42" {
			fmt.Fprint(w, `{"code": 404, "msg": "unknown context"}`)
			return
		}
		if req.Model != "docintel-test" {
			fmt.Fprintf(w, `{"code": 400, "msg": "unknown model %s"}`, req.Model)
			return
		}
		fmt.Fprint(w, `{"code": 0, "msg": "ok", "data": {"job_id": "job-7"}}`)
	}))
	mux.HandleFunc("GET /v1/jobs/job-7", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 0, "msg": "ok", "data": {"state": "done"}}`)
	}))
	mux.HandleFunc("GET /v1/jobs/job-dead", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 0, "msg": "ok", "data": {"state": "failed", "err_msg": "ocr crashed"}}`)
	}))
	mux.HandleFunc("GET /v1/jobs/job-7/result", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 0, "msg": "ok", "data": {"output": "{\"razao_social\": \"Empresa\"}"}}`)
	}))
	mux.HandleFunc("DELETE /v1/jobs/job-7", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 0, "msg": "ok"}`)
	}))
	mux.HandleFunc("DELETE /v1/contexts/ctx-42", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 0, "msg": "ok"}`)
	}))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewDocintelClient(&config.EngineConfig{
		APIURL:   server.URL,
		APIToken: "test-token",
		Model:    "docintel-test",
	})
	return server, client
}

func TestDocintelFullCycle(t *testing.T) {
	ctx := context.Background()
	_, client := newDocintelServer(t)

	contextID, err := client.Register(ctx, "http://files/licenca.pdf", "licenca.pdf")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if contextID != "ctx-42" {
		t.Errorf("Unexpected context id: %q", contextID)
	}

	jobID, err := client.Submit(ctx, contextID, "extraia os dados")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "job-7" {
		t.Errorf("Unexpected job id: %q", jobID)
	}

	status, err := client.Poll(ctx, jobID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status.State != JobDone {
		t.Errorf("Unexpected state: %q", status.State)
	}

	output, err := client.Fetch(ctx, jobID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if output != `{"razao_social": "Empresa"}` {
		t.Errorf("Unexpected output: %q", output)
	}

	if err := client.Cancel(ctx, jobID); err != nil {
		t.Errorf("Cancel: %v", err)
	}
	if err := client.Release(ctx, contextID); err != nil {
		t.Errorf("Release: %v", err)
	}
}

func TestDocintelPollFailedJob(t *testing.T) {
	_, client := newDocintelServer(t)

	status, err := client.Poll(context.Background(), "job-dead")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if status.State != JobFailed {
		t.Errorf("Unexpected state: %q", status.State)
	}
	if status.ErrorMsg != "ocr crashed" {
		t.Errorf("Unexpected error message: %q", status.ErrorMsg)
	}
	if !status.State.Terminal() {
		t.Error("Failed state must be terminal")
	}
}

func TestDocintelAPIError(t *testing.T) {
	_, client := newDocintelServer(t)

	_, err := client.Submit(context.Background(), "unknown-ctx", "extraia")
	if err == nil {
		t.Fatal("Expected error for unknown context")
	}
}

func TestDocintelBadToken(t *testing.T) {
	server, _ := newDocintelServer(t)
	client := NewDocintelClient(&config.EngineConfig{
		APIURL:   server.URL,
		APIToken: "wrong",
		Model:    "docintel-test",
	})

	_, err := client.Register(context.Background(), "http://files/doc.pdf", "doc.pdf")
	if err == nil {
		t.Fatal("Expected error for bad token")
	}
}

func TestDocintelRejectsMissingFileURL(t *testing.T) {
	_, client := newDocintelServer(t)

	_, err := client.Register(context.Background(), "", "doc.pdf")
	if err == nil {
		t.Fatal("Expected error for missing file url")
	}
}
