package job

import "time"

// Status is the persisted lifecycle state of a job.
type Status string

// Job states. A job in creation has no row yet, so there is no pending state.
const (
	StatusStarted Status = "STARTED"
	StatusStopped Status = "STOPPED"
	StatusFailed  Status = "FAILED"
)

// Valid reports whether s is one of the persisted states.
func (s Status) Valid() bool {
	switch s {
	case StatusStarted, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// Job is the persisted unit of work.
//
// ContainerID is a lookup key into the container runtime, not an ownership
// relation. ContainerID and VNCPort are both set or both zero.
type Job struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	ContainerID string    `json:"containerId,omitempty"`
	VNCPort     int       `json:"vncPort,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasContainer reports whether the job is linked to a container.
func (j *Job) HasContainer() bool {
	return j.ContainerID != ""
}

// ContainerInfo carries the result of a successful container creation into
// the job record. It is never persisted.
type ContainerInfo struct {
	ID        string
	Name      string
	Status    string
	HostPort  int
	AccessURL string
}

// ContainerState is what the runtime reports when inspecting a container.
type ContainerState struct {
	Name   string
	Status string
}

// PortMapping is one published port of a listed container.
type PortMapping struct {
	PrivatePort int    `json:"privatePort"`
	PublicPort  int    `json:"publicPort,omitempty"`
	Type        string `json:"type"`
}

// Container mirrors a runtime container for listing.
type Container struct {
	ID     string        `json:"id"`
	Names  []string      `json:"names"`
	Status string        `json:"status"`
	Ports  []PortMapping `json:"ports"`
}

// Image mirrors a runtime image for listing.
type Image struct {
	ID        string   `json:"id"`
	RepoTags  []string `json:"repoTags"`
	SizeBytes int64    `json:"sizeBytes"`
}

// Listing is one entry of the job listing. AccessURL is empty when the live
// port could not be resolved.
type Listing struct {
	Job       Job    `json:"job"`
	AccessURL string `json:"accessUrl,omitempty"`
	Display   string `json:"display"`
}

// StopOutcome is the result of stopping one job inside a batch.
type StopOutcome struct {
	JobID   int64  `json:"jobId"`
	Name    string `json:"name"`
	Stopped bool   `json:"stopped"`
	Error   string `json:"error,omitempty"`
}

// BatchReport summarizes a stop-all run.
type BatchReport struct {
	Outcomes []StopOutcome `json:"outcomes"`
	Stopped  int           `json:"stopped"`
	Failed   int           `json:"failed"`
}
