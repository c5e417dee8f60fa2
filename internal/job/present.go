package job

import (
	"fmt"
	"strings"
)

const unavailable = "N/A"

// FormatJob renders a job listing line: "<id> - <name> [<STATUS>] VNC: <url>".
func FormatJob(l Listing) string {
	url := l.AccessURL
	if url == "" {
		url = unavailable
	}
	return fmt.Sprintf("%d - %s [%s] VNC: %s", l.Job.ID, l.Job.Name, l.Job.Status, url)
}

// FormatContainer renders a container listing line. The VNC hint is present
// only when one of the container's ports publishes exposedPort on the host.
func FormatContainer(c Container, exposedPort int, accessURL func(port int) string) string {
	name := "unknown"
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	vnc := unavailable
	for _, p := range c.Ports {
		if p.PrivatePort == exposedPort && p.PublicPort != 0 {
			vnc = accessURL(p.PublicPort)
			break
		}
	}

	return fmt.Sprintf("ID: %s, Name: %s, Status: %s, VNC: %s", c.ID, name, c.Status, vnc)
}

// FormatImage renders an image listing line with a 12-character short id,
// comma-separated tags and the size in whole megabytes.
func FormatImage(img Image) string {
	id := strings.TrimPrefix(img.ID, "sha256:")
	if len(id) > 12 {
		id = id[:12]
	}

	tags := "<none>"
	if len(img.RepoTags) > 0 {
		tags = strings.Join(img.RepoTags, ", ")
	}

	return fmt.Sprintf("ID: %-12s | Tags: %-30s | Size: %dMB", id, tags, img.SizeBytes/(1024*1024))
}
