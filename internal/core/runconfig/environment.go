package runconfig

// EnvironmentVariable is one environment record of a run configuration
type EnvironmentVariable struct {
	Name     string `yaml:"name" json:"name"`
	Value    string `yaml:"value" json:"value"`
	ReadOnly bool   `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// EnvironmentVariables is the ordered environment of a run configuration.
// Names are unique; writing an existing name replaces the record in place.
type EnvironmentVariables []EnvironmentVariable

// Find returns the record with the given name
func (e EnvironmentVariables) Find(name string) (EnvironmentVariable, bool) {
	for _, v := range e {
		if v.Name == name {
			return v, true
		}
	}
	return EnvironmentVariable{}, false
}

// Clone returns a copy that shares no backing array with e
func (e EnvironmentVariables) Clone() EnvironmentVariables {
	if e == nil {
		return nil
	}
	out := make(EnvironmentVariables, len(e))
	copy(out, e)
	return out
}

// Set overwrites the record named v.Name, or appends v when there is none
func (e EnvironmentVariables) Set(v EnvironmentVariable) EnvironmentVariables {
	for i := range e {
		if e[i].Name == v.Name {
			e[i] = v
			return e
		}
	}
	return append(e, v)
}

// Map returns the environment as a name to value mapping
func (e EnvironmentVariables) Map() map[string]string {
	m := make(map[string]string, len(e))
	for _, v := range e {
		m[v.Name] = v.Value
	}
	return m
}

// Environ returns the environment in NAME=value form, in order
func (e EnvironmentVariables) Environ() []string {
	out := make([]string, 0, len(e))
	for _, v := range e {
		out = append(out, v.Name+"="+v.Value)
	}
	return out
}
