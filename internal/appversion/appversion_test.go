package appversion_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otapush/acquisition/internal/appversion"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{name: "major only", version: "1", want: "1.0.0"},
		{name: "multi-digit major", version: "12", want: "12.0.0"},
		{name: "major.minor", version: "1.2", want: "1.2.0"},
		{name: "major.minor with prerelease", version: "1.2-beta", want: "1.2.0-beta"},
		{name: "major.minor with build metadata", version: "1.2+build5", want: "1.2.0+build5"},
		{name: "full semver untouched", version: "1.2.3", want: "1.2.3"},
		{name: "full semver with prerelease untouched", version: "1.2.3-rc.1", want: "1.2.3-rc.1"},
		{name: "wildcard range untouched", version: "1.2.x", want: "1.2.x"},
		{name: "garbage untouched", version: "abc", want: "abc"},
		{name: "empty untouched", version: "", want: ""},
		{name: "leading zero segments", version: "0.1", want: "0.1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := appversion.Normalize(tt.version)
			require.Equal(t, tt.want, got)

			// Normalization is idempotent.
			require.Equal(t, got, appversion.Normalize(got))
		})
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"1.0.0", "0.0.1", "1.2.3-rc.1", "1.2.3+build", "v1.2.3", "V2.0.0"}
	for _, v := range valid {
		require.True(t, appversion.IsValid(v), "expected %q to be valid", v)
	}

	invalid := []string{"", "1", "1.2", "abc", "1.2.x", "1.0.0.0"}
	for _, v := range invalid {
		require.False(t, appversion.IsValid(v), "expected %q to be invalid", v)
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		version   string
		rangeExpr string
		want      bool
	}{
		{"1.0.0", "1.0.0", true},
		{"1.0.1", "1.0.0", false},
		{"1.0.1", "~1.0.0", true},
		{"1.1.0", "~1.0.0", false},
		{"1.9.9", "^1.0.0", true},
		{"2.0.0", "^1.0.0", false},
		{"1.2.7", "1.2.x", true},
		{"1.3.0", "1.2.x", false},
		{"1.5.0", ">=1.0.0 <2.0.0", true},
		{"2.5.0", ">=1.0.0 <2.0.0", false},
		{"3.1.4", "*", true},
		{"3.1.4", "", true},
		{"1.0.0-beta", "1.0.0", false},
		{"1.0.0", "not a range", false},
		{"garbage", "1.0.0", false},
	}

	for _, tt := range tests {
		got := appversion.Satisfies(tt.version, tt.rangeExpr)
		require.Equal(t, tt.want, got, "Satisfies(%q, %q)", tt.version, tt.rangeExpr)
	}
}

func TestAtLeast(t *testing.T) {
	const gate = "1.5.2-beta"

	require.True(t, appversion.AtLeast("1.5.2-beta", gate))
	require.True(t, appversion.AtLeast("1.5.2", gate))
	require.True(t, appversion.AtLeast("2.0.0", gate))
	require.False(t, appversion.AtLeast("1.5.2-alpha", gate))
	require.False(t, appversion.AtLeast("1.5.1", gate))
	require.False(t, appversion.AtLeast("", gate))
	require.False(t, appversion.AtLeast("garbage", gate))
}
