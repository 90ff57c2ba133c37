package runconfig

import "runtime"

// Platform is the operating system the launched process runs on. It decides
// how Java options are escaped and whether the SIP script rewrite applies.
type Platform struct {
	GOOS string
}

// CurrentPlatform returns the platform this binary was built for
func CurrentPlatform() Platform {
	return Platform{GOOS: runtime.GOOS}
}

// IsWindows reports whether options pass through cmd.exe
func (p Platform) IsWindows() bool {
	return p.GOOS == "windows"
}

// IsMac reports whether System Integrity Protection may strip DYLD_* variables
func (p Platform) IsMac() bool {
	return p.GOOS == "darwin"
}

func (p Platform) String() string {
	return p.GOOS
}
