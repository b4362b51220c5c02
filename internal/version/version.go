package version

import (
	"fmt"
	"os/exec"
	"strings"
)

// Set through -ldflags at release time.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

type gitFunc func(args ...string) (string, error)

// Resolve returns Version, suffixed with `git describe` output when running
// from a checkout that is not sitting on a release tag.
func Resolve() string {
	return resolveVersion(Version, runGit)
}

// Detailed is the long form printed by the version subcommand.
func Detailed(binary string) string {
	return detailed(binary, Resolve(), Commit, Date)
}

func detailed(binary, version, commit, date string) string {
	line := fmt.Sprintf("%s v%s", binary, version)
	if commit != "" && commit != "unknown" {
		line += fmt.Sprintf(" (commit %s", commit)
		if date != "" && date != "unknown" {
			line += ", built " + date
		}
		line += ")"
	}
	return line
}

func resolveVersion(base string, git gitFunc) string {
	if base == "" {
		base = "0.0.0"
	}

	if suffix := gitSuffix(base, git); suffix != "" {
		return base + "-" + suffix
	}
	return base
}

func gitSuffix(base string, git gitFunc) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}
	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(desc, "v"+base+"-")
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
