// Package script works out which command a startup descriptor launches.
package script

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"mirrord.dev/launch/internal/core/runconfig"
)

// DefaultStartupScript is the startup script relative to the server installation root
const DefaultStartupScript = "bin/catalina.sh"

// unescapedSpace matches a space together with the character before it, as
// long as that character is not a backslash.
var unescapedSpace = regexp.MustCompile(`(^|[^\\]) `)

// ResolvedCommand is the command and argument tail a descriptor resolves to
type ResolvedCommand struct {
	Command string
	Args    string
	HasArgs bool
}

// InstallationRootFunc returns the installation root of the application server
type InstallationRootFunc func() (string, error)

// Resolve returns the command line the descriptor starts. When the default
// script is used and the descriptor does not carry one, the script is derived
// from the installation root.
func Resolve(desc runconfig.StartupDescriptor, root InstallationRootFunc) (ResolvedCommand, error) {
	if !desc.UseDefault {
		if desc.Script == "" {
			return ResolvedCommand{}, runconfig.ErrMissingField("startup script")
		}
		return ResolvedCommand{
			Command: desc.Script,
			Args:    desc.ProgramParameters,
			HasArgs: desc.ProgramParameters != "",
		}, nil
	}

	commandLine := desc.DefaultScript
	if strings.TrimSpace(commandLine) == "" {
		home, err := installationRoot(root)
		if err != nil {
			return ResolvedCommand{}, err
		}
		commandLine = filepath.Join(home, DefaultStartupScript)
	}

	command, args, ok := SplitCommandLine(commandLine)
	return ResolvedCommand{Command: command, Args: args, HasArgs: ok}, nil
}

// SplitCommandLine splits on the first space not preceded by a backslash
func SplitCommandLine(commandLine string) (command, args string, ok bool) {
	loc := unescapedSpace.FindStringSubmatchIndex(commandLine)
	if loc == nil {
		return commandLine, "", false
	}
	// loc[3] is the end of the preceding character, i.e. the space offset
	space := loc[3]
	return commandLine[:space], commandLine[space+1:], true
}

func installationRoot(root InstallationRootFunc) (string, error) {
	if root == nil {
		return "", runconfig.ErrMissingField("installation root")
	}
	home, err := root()
	if err != nil {
		return "", fmt.Errorf("%w: installation root: %w", runconfig.ErrConfigurationUnavailable, err)
	}
	if home == "" {
		return "", runconfig.ErrMissingField("installation root")
	}
	return home, nil
}
