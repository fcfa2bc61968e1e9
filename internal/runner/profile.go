package runner

import (
	"path/filepath"
	"strings"
)

// Profile describes how one language toolchain compiles and runs a
// source file. Compile is nil for languages without a static check;
// build products land in the work directory because the code mount is
// read-only.
type Profile struct {
	Name    string
	Compile func(src, work string) []string
	Run     func(src, work string) []string
}

// ProfileFor returns the toolchain profile for a language tag.
func ProfileFor(name string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "python":
		return Profile{
			Name: "python",
			Run: func(src, work string) []string {
				return []string{"python3", src}
			},
		}, true
	case "javascript", "node":
		return Profile{
			Name: "javascript",
			Compile: func(src, work string) []string {
				return []string{"node", "--check", src}
			},
			Run: func(src, work string) []string {
				return []string{"node", src}
			},
		}, true
	case "cpp", "c++":
		return Profile{
			Name: "cpp",
			Compile: func(src, work string) []string {
				return []string{"g++", "-O2", "-o", filepath.Join(work, "program"), src}
			},
			Run: func(src, work string) []string {
				return []string{filepath.Join(work, "program")}
			},
		}, true
	case "java":
		return Profile{
			Name: "java",
			Compile: func(src, work string) []string {
				return []string{"javac", "-d", work, src}
			},
			Run: func(src, work string) []string {
				return []string{"java", "-cp", work, "Main"}
			},
		}, true
	default:
		return Profile{}, false
	}
}
