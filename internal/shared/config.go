package shared

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	configDirName  = "vm-monitor"
	configFileName = "vm-monitor.json"
)

type AgentConfig struct {
	InstanceID      uuid.UUID `json:"instance_id"`
	InstanceName    string    `json:"instance_name"`
	APIURL          string    `json:"api_url"`
	APIKey          string    `json:"api_key"`
	CloudProvider   string    `json:"cloud_provider"`
	IntervalSeconds int       `json:"interval_seconds"`
	BatchSize       int       `json:"batch_size"`
	InitializedAt   time.Time `json:"initialized_at"`
}

// DefaultAgentConfigPath returns the per-user config location,
// e.g. ~/.config/vm-monitor/vm-monitor.json on Linux.
func DefaultAgentConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configDirName, configFileName), nil
}

func LoadAgentConfig(path string) (*AgentConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c AgentConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 60
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	return &c, nil
}

// SaveAgentConfig writes the config with 0600 perms; it holds the API key.
func SaveAgentConfig(path string, c *AgentConfig) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0600)
}
