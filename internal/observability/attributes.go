// Package observability provides metrics and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrOutcome = "outcome"
	attrAction  = "action"
	attrOp      = "op"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func actionAttr(action string) attribute.KeyValue {
	return attribute.String(attrAction, action)
}

func opAttr(op string) attribute.KeyValue {
	return attribute.String(attrOp, op)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces dynamic path segments with placeholders to keep
// label cardinality bounded:
//
//	/v1/jobs/42/stop         -> /v1/jobs/{jobId}/stop
//	/v1/containers/3f2a/job  -> /v1/containers/{containerId}/job
func normalizePath(path string) string {
	segs := strings.Split(path, "/")
	if len(segs) < 4 || segs[1] != "v1" || segs[3] == "" {
		return path
	}
	switch segs[2] {
	case "jobs":
		if segs[3] != "stop-all" {
			segs[3] = "{jobId}"
		}
	case "containers":
		segs[3] = "{containerId}"
	}
	return strings.Join(segs, "/")
}

// WithMethod returns a metric option with the method attribute.
func WithMethod(method string) metric.MeasurementOption {
	return metric.WithAttributes(methodAttr(method))
}

// WithOutcome returns a metric option with the outcome attribute.
func WithOutcome(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(outcomeAttr(outcome))
}
