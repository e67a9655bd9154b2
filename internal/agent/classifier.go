// Copyright Contributors to the CodeRun Operator project

// Package agent classifies a GitHub App identity into an agent short name
// and a workspace class (implementation vs support vs healer), and derives
// the workspace PVC name from that classification.
package agent

import (
	"fmt"
	"strings"

	"github.com/5dlabs/coderun-operator/internal/naming"
)

// implementationAgents is the closed set of agent short names whose
// workspace PVC is shared across runs for a service, rather than isolated
// per agent. This is configuration data, not a type hierarchy: adding an
// agent never requires a new Go type, only a new entry here (or, in a future
// revision, in controller config).
var implementationAgents = map[string]bool{
	"rex":   true,
	"blaze": true,
	"morgan": true,
}

// UnknownAgentError is returned by ShortName when githubApp does not match
// the recognized "<Vendor>-<Name>" pattern. Callers fall back to
// workspace-<service> naming rather than treating this as fatal.
type UnknownAgentError struct {
	GithubApp string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("agent: could not extract agent short name from githubApp %q", e.GithubApp)
}

// ShortName extracts the agent short name from a GitHub App identifier such
// as "5DLabs-Rex", returning "rex". The vendor prefix is whatever precedes
// the last '-'; the remainder is lowercased. Returns UnknownAgentError when
// githubApp has no '-' separator or the suffix is empty.
func ShortName(githubApp string) (string, error) {
	idx := strings.LastIndex(githubApp, "-")
	if idx < 0 || idx == len(githubApp)-1 {
		return "", &UnknownAgentError{GithubApp: githubApp}
	}
	suffix := githubApp[idx+1:]
	if suffix == "" {
		return "", &UnknownAgentError{GithubApp: githubApp}
	}
	return strings.ToLower(suffix), nil
}

// IsImplementation reports whether the given agent short name belongs to the
// closed implementation-agent set.
func IsImplementation(shortName string) bool {
	return implementationAgents[strings.ToLower(shortName)]
}

// IsHealer reports whether a run is a healer/remediation run: the run type
// is "remediate", or the service name contains "heal" or "watch", or the CLI
// settings' "template" value contains "heal" or "watch" (case-insensitive).
func IsHealer(runType, service, templateSetting string) bool {
	if runType == "remediate" {
		return true
	}
	s := strings.ToLower(service)
	tmpl := strings.ToLower(templateSetting)
	if strings.Contains(s, "heal") || strings.Contains(s, "watch") {
		return true
	}
	if strings.Contains(tmpl, "heal") || strings.Contains(tmpl, "watch") {
		return true
	}
	return false
}

// PVCName selects the workspace PVC for a run, given the service, the
// GitHub App identity, and whether this run has been classified as a healer
// run by the caller (see IsHealer). Unknown agent short names fall back to
// the implementation-agent naming scheme, matching spec.md's "callers fall
// back to workspace-<service>".
func PVCName(service, githubApp string, healer bool) string {
	service = naming.SanitizeLabel(service)

	if healer {
		return fmt.Sprintf("healer-%s", service)
	}

	shortName, err := ShortName(githubApp)
	if err != nil {
		return fmt.Sprintf("workspace-%s", service)
	}
	if IsImplementation(shortName) {
		return fmt.Sprintf("workspace-%s", service)
	}
	return fmt.Sprintf("workspace-%s-%s", naming.SanitizeLabel(shortName), service)
}
