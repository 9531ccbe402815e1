package shared

import (
	"time"

	"github.com/google/uuid"
)

// Auth headers carried on every protected request.
const (
	HeaderInstanceID = "X-Instance-Id"
	HeaderTimestamp  = "X-Request-Timestamp"
	HeaderSignature  = "X-Request-Signature"
)

type RegisterRequest struct {
	InstanceID    uuid.UUID `json:"instance_id"`
	InstanceName  string    `json:"instance_name"`
	CloudProvider string    `json:"cloud_provider"`
	// The agent generates its own key and hands it over at registration;
	// the server uses it to verify signatures on everything that follows.
	AgentAPIKey string `json:"agent_api_key"`
}

type RegisterResponse struct {
	Message    string    `json:"message"`
	InstanceID uuid.UUID `json:"instance_id"`
}

type CPUMetrics struct {
	UsagePercent float64   `json:"usage_percent"`
	CoreCount    int       `json:"core_count"`
	PerCoreUsage []float64 `json:"per_core_usage"`
}

type MemoryMetrics struct {
	TotalMemory     uint64 `json:"total_memory"`
	UsedMemory      uint64 `json:"used_memory"`
	AvailableMemory uint64 `json:"available_memory"`
	TotalSwap       uint64 `json:"total_swap"`
	UsedSwap        uint64 `json:"used_swap"`
}

type DiskMetric struct {
	Name              string `json:"name"`
	MountPoint        string `json:"mount_point"`
	TotalSpace        uint64 `json:"total_space"`
	AvailableSpace    uint64 `json:"available_space"`
	Filesystem        string `json:"filesystem"`
	TotalWrittenBytes uint64 `json:"total_written_bytes"`
	TotalReadBytes    uint64 `json:"total_read_bytes"`
}

type NetworkMetric struct {
	InterfaceName         string `json:"interface_name"`
	ReceivedBytesTotal    uint64 `json:"received_bytes_total"`
	TransmittedBytesTotal uint64 `json:"transmitted_bytes_total"`
}

type SystemInfo struct {
	Hostname      string `json:"hostname"`
	OSName        string `json:"os_name"`
	OSVersion     string `json:"os_version"`
	KernelVersion string `json:"kernel_version"`
	Uptime        uint64 `json:"uptime"`
}

type SystemMetrics struct {
	Timestamp      time.Time       `json:"timestamp"`
	InstanceID     uuid.UUID       `json:"instance_id"`
	CPUMetrics     CPUMetrics      `json:"cpu_metrics"`
	MemoryMetrics  MemoryMetrics   `json:"memory_metrics"`
	DiskMetrics    []DiskMetric    `json:"disk_metrics"`
	NetworkMetrics []NetworkMetric `json:"network_metrics"`
	SystemInfo     SystemInfo      `json:"system_info"`
}

type MetricsBatch struct {
	Metrics []SystemMetrics `json:"metrics"`
}

type HeartbeatRequest struct {
	InstanceID uuid.UUID `json:"instance_id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
