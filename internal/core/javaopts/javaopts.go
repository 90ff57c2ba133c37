// Package javaopts builds the JAVA_OPTS value handed to a rewritten startup
// script. Once the script is substituted the server no longer receives the
// management options the IDE would normally pass, so they are rebuilt here.
package javaopts

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"

	"mirrord.dev/launch/internal/core/quoting"
	"mirrord.dev/launch/internal/core/runconfig"
)

const (
	// EnvName is the variable the startup script reads extra JVM options from
	EnvName = "JAVA_OPTS"

	// RMIHostOption is the property pinning the RMI server host
	RMIHostOption = "java.rmi.server.hostname"
)

// CustomOptions returns the JMX options for model. Credential files are
// canonicalized; a failure to do so is reported as runconfig.ErrIO.
func CustomOptions(model runconfig.ServerModel) ([]string, error) {
	result := []string{
		"-Dcom.sun.management.jmxremote=",
		"-Dcom.sun.management.jmxremote.port=" + strconv.Itoa(model.JNDIPort),
		"-Dcom.sun.management.jmxremote.ssl=false",
	}

	if model.AccessFile == "" || model.PasswordFile == "" {
		result = append(result, "-Dcom.sun.management.jmxremote.authenticate=false")
	} else {
		passwordFile, err := canonicalPath(model.PasswordFile)
		if err != nil {
			return nil, err
		}
		accessFile, err := canonicalPath(model.AccessFile)
		if err != nil {
			return nil, err
		}
		result = append(result,
			"-Dcom.sun.management.jmxremote.password.file="+passwordFile,
			"-Dcom.sun.management.jmxremote.access.file="+accessFile,
		)
	}

	if _, ok := model.VMArgument(RMIHostOption); !ok {
		result = append(result, "-D"+RMIHostOption+"=127.0.0.1")
	}
	return result, nil
}

// EnvValue combines the JAVA_OPTS the patch carries with the custom options
// of model.
func EnvValue(platform runconfig.Platform, model runconfig.ServerModel, patchEnv map[string]string) (string, error) {
	custom, err := CustomOptions(model)
	if err != nil {
		return "", err
	}
	return quoting.Combine(platform, patchEnv[EnvName], custom), nil
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: canonicalize %s: %v", runconfig.ErrIO, path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", fmt.Errorf("%w: canonicalize %s: %v", runconfig.ErrIO, path, err)
	}
	return resolved, nil
}
