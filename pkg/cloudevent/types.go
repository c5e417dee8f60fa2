// Package cloudevent builds and delivers CloudEvents 1.0 in structured JSON mode.
package cloudevent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// SpecVersion is the CloudEvents version produced by New.
	SpecVersion = "1.0"
	// ContentTypeJSON is the datacontenttype of events built by New.
	ContentTypeJSON = "application/json"
)

// CloudEvent is a CloudEvents 1.0 event. Data is always a JSON object.
type CloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject,omitempty"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            map[string]any `json:"data,omitempty"`
}

// New creates an event stamped with the current UTC time. An empty id is
// replaced with a random UUID.
func New(eventType, source, subject, id string, data map[string]any) *CloudEvent {
	if id == "" {
		id = uuid.NewString()
	}
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              id,
		Time:            time.Now().UTC(),
		DataContentType: ContentTypeJSON,
		Data:            data,
	}
}

// Validate checks the attributes CloudEvents requires on every event.
func (e *CloudEvent) Validate() error {
	var errs []error
	if e.SpecVersion != SpecVersion {
		errs = append(errs, errors.New("specversion must be "+SpecVersion))
	}
	if e.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if e.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if e.Type == "" {
		errs = append(errs, errors.New("type is required"))
	}
	return errors.Join(errs...)
}
