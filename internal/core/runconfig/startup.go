package runconfig

// StartupDescriptor describes how the application server is started. When
// UseDefault is set the command comes from DefaultScript, otherwise from
// Script and ProgramParameters. Empty strings mean "not set".
type StartupDescriptor struct {
	UseDefault        bool   `yaml:"use_default" json:"use_default"`
	Script            string `yaml:"script,omitempty" json:"script,omitempty"`
	DefaultScript     string `yaml:"default_script,omitempty" json:"default_script,omitempty"`
	ProgramParameters string `yaml:"program_parameters,omitempty" json:"program_parameters,omitempty"`
	VMParameters      string `yaml:"vm_parameters,omitempty" json:"vm_parameters,omitempty"`
}
