package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys injected into every agent container.
const (
	EnvInferenceURL   = "OLLAMA_API"
	EnvInferenceModel = "OLLAMA_MODEL"
)

// Provisioning holds the fixed parameters every job container is created with.
type Provisioning struct {
	AgentImage          string            `yaml:"agentImage"`
	ExposedPort         int               `yaml:"exposedPort"`         // Container-internal VNC port
	AccessHost          string            `yaml:"accessHost"`          // Host used in access URLs
	AccessPath          string            `yaml:"accessPath"`          // Path suffix of access URLs
	ContainerNamePrefix string            `yaml:"containerNamePrefix"` // Prefix of generated container names
	Env                 map[string]string `yaml:"env"`
	RuntimeTimeout      time.Duration     `yaml:"runtimeTimeout"` // Bound on each runtime call
	StopTimeout         time.Duration     `yaml:"stopTimeout"`    // Grace period before the runtime kills a container
	StopAllConcurrency  int               `yaml:"stopAllConcurrency"`
}

// DefaultProvisioning returns the built-in provisioning parameters.
func DefaultProvisioning() Provisioning {
	return Provisioning{
		AgentImage:          "coding-agent:latest",
		ExposedPort:         6080,
		AccessHost:          "localhost",
		AccessPath:          "/vnc_lite.html",
		ContainerNamePrefix: "agent-",
		Env: map[string]string{
			EnvInferenceURL:   "http://host.docker.internal:11434",
			EnvInferenceModel: "codellama",
		},
		RuntimeTimeout:     30 * time.Second,
		StopTimeout:        10 * time.Second,
		StopAllConcurrency: 4,
	}
}

// LoadProvisioning builds provisioning parameters from defaults, then the YAML
// file at path (skipped when path is empty), then environment overrides.
func LoadProvisioning(path string) (Provisioning, error) {
	p := DefaultProvisioning()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return p, fmt.Errorf("read provisioning file: %w", err)
		}
		var fromFile Provisioning
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return p, fmt.Errorf("parse provisioning file %s: %w", path, err)
		}
		p = p.merge(fromFile)
	}

	p.AgentImage = GetEnv("AGENT_IMAGE", p.AgentImage)
	p.ExposedPort = GetIntEnv("VNC_PORT", p.ExposedPort)
	p.AccessHost = GetEnv("VNC_HOST", p.AccessHost)
	p.AccessPath = GetEnv("VNC_PATH", p.AccessPath)
	p.ContainerNamePrefix = GetEnv("CONTAINER_NAME_PREFIX", p.ContainerNamePrefix)
	p.RuntimeTimeout = GetDurationEnv("RUNTIME_TIMEOUT", p.RuntimeTimeout)
	p.StopTimeout = GetDurationEnv("STOP_TIMEOUT", p.StopTimeout)
	p.StopAllConcurrency = GetIntEnv("STOP_ALL_CONCURRENCY", p.StopAllConcurrency)
	if v := GetEnv("INFERENCE_URL", ""); v != "" {
		p.Env[EnvInferenceURL] = v
	}
	if v := GetEnv("INFERENCE_MODEL", ""); v != "" {
		p.Env[EnvInferenceModel] = v
	}

	return p, p.Validate()
}

// merge overlays the non-zero fields of o onto p. Env entries are merged key by key.
func (p Provisioning) merge(o Provisioning) Provisioning {
	if o.AgentImage != "" {
		p.AgentImage = o.AgentImage
	}
	if o.ExposedPort != 0 {
		p.ExposedPort = o.ExposedPort
	}
	if o.AccessHost != "" {
		p.AccessHost = o.AccessHost
	}
	if o.AccessPath != "" {
		p.AccessPath = o.AccessPath
	}
	if o.ContainerNamePrefix != "" {
		p.ContainerNamePrefix = o.ContainerNamePrefix
	}
	if o.RuntimeTimeout > 0 {
		p.RuntimeTimeout = o.RuntimeTimeout
	}
	if o.StopTimeout > 0 {
		p.StopTimeout = o.StopTimeout
	}
	if o.StopAllConcurrency > 0 {
		p.StopAllConcurrency = o.StopAllConcurrency
	}
	env := make(map[string]string, len(p.Env)+len(o.Env))
	for k, v := range p.Env {
		env[k] = v
	}
	for k, v := range o.Env {
		env[k] = v
	}
	p.Env = env
	return p
}

// Validate checks that the parameters can produce a usable container.
func (p Provisioning) Validate() error {
	if p.AgentImage == "" {
		return fmt.Errorf("agent image is required")
	}
	if p.ExposedPort < 1 || p.ExposedPort > 65535 {
		return fmt.Errorf("exposed port %d out of range", p.ExposedPort)
	}
	if !strings.HasPrefix(p.AccessPath, "/") {
		return fmt.Errorf("access path %q must start with /", p.AccessPath)
	}
	return nil
}

// EnvList returns the container environment as sorted KEY=VALUE pairs.
func (p Provisioning) EnvList() []string {
	env := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
