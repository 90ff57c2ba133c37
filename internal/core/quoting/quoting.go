// Package quoting prepares Java options that travel to the server through an
// environment variable rather than a command line.
package quoting

import (
	"strings"

	"mirrord.dev/launch/internal/core/runconfig"
)

// specialChars are the characters that make a token unsafe to pass unquoted
// through JAVA_OPTS.
const specialChars = "() ?*+&"

// NeedsQuoting reports whether token contains a character the launcher script
// would split or expand.
func NeedsQuoting(token string) bool {
	return strings.ContainsAny(token, specialChars)
}

// QuoteJavaOptions quotes the tokens that need it and joins them with single
// spaces. On Windows every & inside a quoted token becomes ^^^& because the
// value is unescaped twice, once by cmd.exe and once by catalina.bat.
func QuoteJavaOptions(platform runconfig.Platform, options []string) string {
	quoted := make([]string, len(options))
	for i, opt := range options {
		if !NeedsQuoting(opt) {
			quoted[i] = opt
			continue
		}
		q := `"` + opt + `"`
		if platform.IsWindows() {
			q = strings.ReplaceAll(q, "&", "^^^&")
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " ")
}

// Combine appends the quoted additions to base. The base value is assumed to
// be well formed already and is never quoted. Callers must pass at least one
// addition.
func Combine(platform runconfig.Platform, base string, additions []string) string {
	if len(additions) == 0 {
		panic("quoting: Combine called without additions")
	}
	custom := QuoteJavaOptions(platform, additions)
	if strings.TrimSpace(base) == "" {
		return custom
	}
	return base + " " + custom
}
