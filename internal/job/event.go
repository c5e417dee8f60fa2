package job

import (
	"strconv"

	"agentrunner/pkg/cloudevent"
)

// EventSource is the CloudEvents source of every lifecycle event.
const EventSource = "agentrunner"

// Event types for job lifecycle notifications
const (
	EventTypeStarted    = "agentrunner.job.started"
	EventTypeFailed     = "agentrunner.job.failed"
	EventTypeStopped    = "agentrunner.job.stopped"
	EventTypeStopFailed = "agentrunner.job.stop_failed"
	EventTypeStopAll    = "agentrunner.jobs.stop_all"
)

// Transition names used in events, logs and metrics.
const (
	ActionCreate = "create"
	ActionStop   = "stop"
	ActionStart  = "start"
)

// BuildJobEvent creates an event describing the job after a transition.
func BuildJobEvent(eventType, action string, j *Job, cause error) *cloudevent.CloudEvent {
	data := map[string]any{
		"jobId":  j.ID,
		"name":   j.Name,
		"status": string(j.Status),
		"action": action,
	}
	if j.HasContainer() {
		data["containerId"] = j.ContainerID
		data["vncPort"] = j.VNCPort
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	return cloudevent.New(eventType, EventSource, "job/"+strconv.FormatInt(j.ID, 10), "", data)
}

// BuildStopAllEvent creates an event summarizing a stop-all batch.
func BuildStopAllEvent(report *BatchReport) *cloudevent.CloudEvent {
	failed := make([]int64, 0, report.Failed)
	for _, o := range report.Outcomes {
		if !o.Stopped {
			failed = append(failed, o.JobID)
		}
	}
	data := map[string]any{
		"stopped":      report.Stopped,
		"failed":       report.Failed,
		"failedJobIds": failed,
	}
	return cloudevent.New(EventTypeStopAll, EventSource, "jobs", "", data)
}
