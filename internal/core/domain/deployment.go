package domain

import "time"

// Status is the lifecycle state of a deployment.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// Active reports whether the status counts toward the one-active-per-app rule.
func (s Status) Active() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusStopping
}

// DeploymentRecord is the registry's view of one deployed application.
// The app name is unique among active records.
type DeploymentRecord struct {
	AppName        string    `json:"app_name"`
	Repository     string    `json:"repository"`
	ContainerID    string    `json:"container_id"`
	HostPort       int       `json:"host_port"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	URL            string    `json:"url"`

	// HistoryID links the record to its open history entry so a stop can
	// finalize the same entry the deploy created.
	HistoryID string `json:"-"`
}

// HistoryEntry is one row of the durable deployment log. StoppedAt is nil
// while the deployment is still running; once set it never changes.
type HistoryEntry struct {
	ID          string     `json:"id"`
	AppName     string     `json:"app_name"`
	Repository  string     `json:"repository"`
	ContainerID string     `json:"container_id"`
	HostPort    int        `json:"host_port"`
	StartedAt   time.Time  `json:"started_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	Status      Status     `json:"status"`
}

// AppDescriptor describes a deployable repository as reported by the catalog.
type AppDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Repository  string `json:"repository"`
	URL         string `json:"url"`
	Language    string `json:"language"`
	Stars       int    `json:"stars"`
}

// ResourceLimits are the static per-container caps applied to every deployment.
type ResourceLimits struct {
	MemoryBytes int64
	CPUPeriod   int64
	CPUQuota    int64
}

// DefaultResourceLimits caps each container at 512 MiB and half a CPU.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MemoryBytes: 512 * 1024 * 1024,
		CPUPeriod:   100000,
		CPUQuota:    50000,
	}
}
