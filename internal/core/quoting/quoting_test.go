package quoting

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"mirrord.dev/launch/internal/core/runconfig"
)

var (
	windows = runconfig.Platform{GOOS: "windows"}
	linux   = runconfig.Platform{GOOS: "linux"}
	darwin  = runconfig.Platform{GOOS: "darwin"}
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name      string
		platform  runconfig.Platform
		base      string
		additions []string
		want      string
	}{
		{name: "windows_ampersand", platform: windows, base: "", additions: []string{"a&b"}, want: `"a^^^&b"`},
		{name: "linux_ampersand", platform: linux, base: "", additions: []string{"a&b"}, want: `"a&b"`},
		{name: "darwin_ampersand", platform: darwin, base: "", additions: []string{"a&b"}, want: `"a&b"`},
		{name: "base_and_plain_token", platform: linux, base: "-Xmx1g", additions: []string{"foo"}, want: "-Xmx1g foo"},
		{name: "blank_base_is_dropped", platform: linux, base: "   ", additions: []string{"foo"}, want: "foo"},
		{name: "base_is_never_quoted", platform: linux, base: "-Dx=(a b)", additions: []string{"foo"}, want: "-Dx=(a b) foo"},
		{
			name:      "mixed_tokens",
			platform:  linux,
			base:      "-javaagent:/lib/agent.jar",
			additions: []string{"-Dcom.sun.management.jmxremote=", "-Dpath=/Program Files/x", "-Dglob=*.jar"},
			want:      `-javaagent:/lib/agent.jar -Dcom.sun.management.jmxremote= "-Dpath=/Program Files/x" "-Dglob=*.jar"`,
		},
		{
			name:      "windows_space_without_ampersand",
			platform:  windows,
			base:      "",
			additions: []string{"-Dp=C:\\Program Files (x86)\\t"},
			want:      `"-Dp=C:\Program Files (x86)\t"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Combine(tt.platform, tt.base, tt.additions))
		})
	}
}

func TestCombine_PanicsWithoutAdditions(t *testing.T) {
	assert.Panics(t, func() { Combine(linux, "-Xmx1g", nil) })
	assert.Panics(t, func() { Combine(linux, "", []string{}) })
}

func TestNeedsQuoting(t *testing.T) {
	for _, c := range []string{"(", ")", " ", "?", "*", "+", "&"} {
		assert.True(t, NeedsQuoting("a"+c+"b"), "token with %q must be quoted", c)
	}
	assert.False(t, NeedsQuoting("-Dcom.sun.management.jmxremote.port=1099"))
	assert.False(t, NeedsQuoting(""))
}

func genToken() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf('a', 'Z', '-', '=', '.', '/', '(', ')', ' ', '?', '*', '+', '&')).
		Map(func(runes []rune) string {
			return string(runes)
		})
}

func TestQuoteJavaOptions_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("plain tokens are passed through", prop.ForAll(
		func(token string) bool {
			if NeedsQuoting(token) {
				return true
			}
			return QuoteJavaOptions(windows, []string{token}) == token
		},
		genToken(),
	))

	properties.Property("quoted tokens are wrapped in double quotes", prop.ForAll(
		func(token string) bool {
			if !NeedsQuoting(token) {
				return true
			}
			q := QuoteJavaOptions(linux, []string{token})
			return q == `"`+token+`"`
		},
		genToken(),
	))

	properties.Property("windows escaping only touches ampersands", prop.ForAll(
		func(token string) bool {
			if !NeedsQuoting(token) {
				return true
			}
			q := QuoteJavaOptions(windows, []string{token})
			return strings.ReplaceAll(q, "^^^&", "&") == `"`+token+`"`
		},
		genToken(),
	))

	properties.Property("combine keeps the base as prefix", prop.ForAll(
		func(base, token string) bool {
			got := Combine(linux, base, []string{token})
			if strings.TrimSpace(base) == "" {
				return got == QuoteJavaOptions(linux, []string{token})
			}
			return strings.HasPrefix(got, base+" ")
		},
		genToken(),
		genToken(),
	))

	properties.TestingRun(t)
}
