package runconfig

import (
	"fmt"
	"strings"
	"sync"
)

// View is the capability-restricted handle the interceptor gets on a run
// configuration. It exposes the environment and the startup descriptor and
// nothing else of the host's model.
type View interface {
	// EnvironmentVariables returns a copy of the current environment
	EnvironmentVariables() EnvironmentVariables

	// SetEnvironmentVariables replaces the whole environment
	SetEnvironmentVariables(vars EnvironmentVariables)

	// AddEnvironmentVariable writes one record, replacing a record of the same name
	AddEnvironmentVariable(v EnvironmentVariable)

	// StartupDescriptor returns a copy of the startup descriptor
	StartupDescriptor() StartupDescriptor

	// UpdateStartupDescriptor mutates the descriptor in place
	UpdateStartupDescriptor(fn func(*StartupDescriptor))

	// BuildVMParameters regenerates the VM parameters the configuration would
	// pass to the server
	BuildVMParameters() string
}

// ServerModel is the application-server model behind a run configuration.
// Hosts keep it internal; the interceptor only reaches it through a
// ServerModelResolver.
type ServerModel struct {
	Home         string            `yaml:"home" json:"home"`
	JNDIPort     int               `yaml:"jndi_port" json:"jndi_port"`
	AccessFile   string            `yaml:"access_file,omitempty" json:"access_file,omitempty"`
	PasswordFile string            `yaml:"password_file,omitempty" json:"password_file,omitempty"`
	VMArguments  map[string]string `yaml:"vm_arguments,omitempty" json:"vm_arguments,omitempty"`
}

// VMArgument returns the value of an explicit -D property
func (m ServerModel) VMArgument(name string) (string, bool) {
	v, ok := m.VMArguments[name]
	return v, ok
}

// ExecutionTarget is a remote or virtualized target the launch runs in
type ExecutionTarget struct {
	WSLDistribution string `yaml:"wsl_distribution,omitempty" json:"wsl_distribution,omitempty"`
}

// LaunchEnvironment is what the host hands to every lifecycle callback
type LaunchEnvironment struct {
	Name          string
	Kind          string
	Target        *ExecutionTarget
	Configuration View
}

// Document is the persisted form of a run configuration
type Document struct {
	Name           string               `yaml:"name" json:"name"`
	Kind           string               `yaml:"kind" json:"kind"`
	Environment    EnvironmentVariables `yaml:"environment,omitempty" json:"environment,omitempty"`
	Startup        StartupDescriptor    `yaml:"startup" json:"startup"`
	JavaParameters []string             `yaml:"java_parameters,omitempty" json:"java_parameters,omitempty"`
	Server         *ServerModel         `yaml:"server,omitempty" json:"server,omitempty"`
	Target         *ExecutionTarget     `yaml:"target,omitempty" json:"target,omitempty"`
}

// RunConfiguration is a host-owned run configuration. It is safe for
// concurrent use.
type RunConfiguration struct {
	mu             sync.RWMutex
	name           string
	kind           string
	environment    EnvironmentVariables
	startup        StartupDescriptor
	javaParameters []string
	server         *ServerModel
	target         *ExecutionTarget
}

// NewRunConfiguration creates a run configuration from its persisted form
func NewRunConfiguration(doc Document) (*RunConfiguration, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("run configuration name cannot be empty")
	}
	seen := make(map[string]bool, len(doc.Environment))
	for _, v := range doc.Environment {
		if v.Name == "" {
			return nil, fmt.Errorf("run configuration %q: environment variable name cannot be empty", doc.Name)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("run configuration %q: duplicate environment variable %s", doc.Name, v.Name)
		}
		seen[v.Name] = true
	}

	c := &RunConfiguration{
		name:           doc.Name,
		kind:           doc.Kind,
		environment:    doc.Environment.Clone(),
		startup:        doc.Startup,
		javaParameters: append([]string(nil), doc.JavaParameters...),
		target:         doc.Target,
	}
	if doc.Server != nil {
		server := *doc.Server
		c.server = &server
	}
	return c, nil
}

// Name returns the configuration name
func (c *RunConfiguration) Name() string {
	return c.name
}

// Kind returns the configuration kind
func (c *RunConfiguration) Kind() string {
	return c.kind
}

// Target returns the execution target, nil for local launches
func (c *RunConfiguration) Target() *ExecutionTarget {
	return c.target
}

// LaunchEnvironment builds the environment handed to lifecycle callbacks
func (c *RunConfiguration) LaunchEnvironment() *LaunchEnvironment {
	return &LaunchEnvironment{
		Name:          c.name,
		Kind:          c.kind,
		Target:        c.target,
		Configuration: c,
	}
}

func (c *RunConfiguration) EnvironmentVariables() EnvironmentVariables {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.environment.Clone()
}

func (c *RunConfiguration) SetEnvironmentVariables(vars EnvironmentVariables) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.environment = vars.Clone()
}

func (c *RunConfiguration) AddEnvironmentVariable(v EnvironmentVariable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.environment = c.environment.Set(v)
}

func (c *RunConfiguration) StartupDescriptor() StartupDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startup
}

func (c *RunConfiguration) UpdateStartupDescriptor(fn func(*StartupDescriptor)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.startup)
}

// BuildVMParameters joins the user's VM parameters with the parameters the
// configuration generates for the server. A generated parameter the VM
// parameters already carry is not repeated, so a descriptor whose VM
// parameters were built by an earlier call yields the same string again.
func (c *RunConfiguration) BuildVMParameters() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vm := strings.TrimSpace(c.startup.VMParameters)
	parts := make([]string, 0, len(c.javaParameters)+1)
	if vm != "" {
		parts = append(parts, c.startup.VMParameters)
	}
	padded := " " + strings.Join(strings.Fields(vm), " ") + " "
	for _, p := range c.javaParameters {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(padded, " "+strings.Join(strings.Fields(p), " ")+" ") {
			continue
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// ServerModel exposes the internal server model. It is deliberately not part
// of View.
func (c *RunConfiguration) ServerModel() (ServerModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.server == nil {
		return ServerModel{}, false
	}
	return *c.server, true
}

// Document returns the persisted form of the configuration
func (c *RunConfiguration) Document() Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc := Document{
		Name:           c.name,
		Kind:           c.kind,
		Environment:    c.environment.Clone(),
		Startup:        c.startup,
		JavaParameters: append([]string(nil), c.javaParameters...),
		Target:         c.target,
	}
	if c.server != nil {
		server := *c.server
		doc.Server = &server
	}
	return doc
}

var _ View = (*RunConfiguration)(nil)
