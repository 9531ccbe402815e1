package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vmmonitor/internal/shared"
)

type Agent struct {
	ConfigPath string
	Cfg        *shared.AgentConfig
	Client     *http.Client
}

func New(configPath string) (*Agent, error) {
	cfg, err := shared.LoadAgentConfig(configPath)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(configPath, cfg), nil
}

// NewFromConfig builds an agent around an in-memory config, used by init
// before the config file exists.
func NewFromConfig(configPath string, cfg *shared.AgentConfig) *Agent {
	return &Agent{
		ConfigPath: configPath,
		Cfg:        cfg,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// signedRequest builds a request carrying the three auth headers. The
// signature covers the same body bytes attached to the request, so the
// payload must already be marshaled before calling this.
func (a *Agent) signedRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := strings.TrimRight(a.Cfg.APIURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	tsStr := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := shared.Sign(a.Cfg.APIKey, tsStr, method, path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.HeaderInstanceID, a.Cfg.InstanceID.String())
	req.Header.Set(shared.HeaderTimestamp, tsStr)
	req.Header.Set(shared.HeaderSignature, sig)
	return req, nil
}

func (a *Agent) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = b
	}

	req, err := a.signedRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(method + " " + path + " failed: " + resp.Status + ": " + string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// Register delivers the agent's self-generated key to the server. It is the
// one call that goes out unsigned.
func (a *Agent) Register(ctx context.Context) (*shared.RegisterResponse, error) {
	payload := shared.RegisterRequest{
		InstanceID:    a.Cfg.InstanceID,
		InstanceName:  a.Cfg.InstanceName,
		CloudProvider: a.Cfg.CloudProvider,
		AgentAPIKey:   a.Cfg.APIKey,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(a.Cfg.APIURL, "/") + "/v1/agent/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated {
		return nil, errors.New("register failed: " + resp.Status + ": " + string(respBody))
	}

	var rr shared.RegisterResponse
	if err := json.Unmarshal(respBody, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

func (a *Agent) SendMetricsBatch(ctx context.Context, metrics []shared.SystemMetrics) error {
	return a.doJSON(ctx, http.MethodPost, "/v1/agent/metrics", shared.MetricsBatch{Metrics: metrics}, nil)
}

func (a *Agent) SendHeartbeat(ctx context.Context) error {
	payload := shared.HeartbeatRequest{InstanceID: a.Cfg.InstanceID}
	return a.doJSON(ctx, http.MethodPost, "/v1/agent/heartbeat", payload, nil)
}

// CheckHealth probes the open health endpoint.
func (a *Agent) CheckHealth(ctx context.Context) (*shared.HealthResponse, error) {
	url := strings.TrimRight(a.Cfg.APIURL, "/") + "/v1/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("health check failed: " + resp.Status)
	}
	var hr shared.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, err
	}
	return &hr, nil
}
