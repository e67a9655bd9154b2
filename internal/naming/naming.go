// Copyright Contributors to the CodeRun Operator project

// Package naming computes the deterministic, label-safe names the resource
// manager uses for Jobs, ConfigMaps, and labels. Every function here is pure:
// same input always produces the same output, with no timestamps or
// randomness, so that GET-before-CREATE reconciliation is idempotent.
package naming

import (
	"fmt"
	"strings"
)

// maxLabelLength is the Kubernetes label-value length limit.
const maxLabelLength = 63

// SanitizeLabel lowercases v, folds spaces and underscores to hyphens,
// strips any character outside [a-z0-9._-], trims non-alphanumeric
// characters from both ends, and caps the result at 63 characters (again
// trimming a trailing non-alphanumeric left by truncation).
func SanitizeLabel(v string) string {
	s := strings.ToLower(v)
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '_' {
			return '-'
		}
		return r
	}, s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	s = b.String()

	s = trimNonAlnum(s)
	if len(s) > maxLabelLength {
		s = s[:maxLabelLength]
		s = strings.TrimRight(s, "-._")
		s = trimTrailingNonAlnum(s)
	}
	return s
}

func isAlnum(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func trimNonAlnum(s string) string {
	start := 0
	for start < len(s) && !isAlnum(s[start]) {
		start++
	}
	end := len(s)
	for end > start && !isAlnum(s[end-1]) {
		end--
	}
	return s[start:end]
}

func trimTrailingNonAlnum(s string) string {
	end := len(s)
	for end > 0 && !isAlnum(s[end-1]) {
		end--
	}
	return s[:end]
}

// JobName returns the Job name for a run identified by crName (the CodeRun's
// metadata.name), taskID, and contextVersion. It is label-safe and capped at
// 63 characters, and is identical on every call for the same inputs.
func JobName(crName string, taskID int, contextVersion int) string {
	base := fmt.Sprintf("%s-t%d-v%d", crName, taskID, contextVersion)
	return SanitizeLabel(base)
}

// ConfigMapName returns the per-run ConfigMap name:
//
//	code-<ns>-<name>-<uid[0:8]>-<service>-t<task>-v<ver>-files
//
// lowercased, with '_' and '.' folded to '-'.
func ConfigMapName(namespace, crName, uid, service string, taskID, contextVersion int) string {
	shortUID := uid
	if len(shortUID) > 8 {
		shortUID = shortUID[:8]
	}
	raw := fmt.Sprintf("code-%s-%s-%s-%s-t%d-v%d-files", namespace, crName, shortUID, service, taskID, contextVersion)
	raw = strings.ToLower(raw)
	raw = strings.ReplaceAll(raw, "_", "-")
	raw = strings.ReplaceAll(raw, ".", "-")
	return raw
}

// ContainerNameForCLI derives the main container's name from the CLI type and
// (optionally) the model: "<cliType>" + "-<sanitized model>" when model is
// non-empty, with consecutive hyphens collapsed and the result trimmed to 63
// characters preserving a trailing alphanumeric. Falls back to "cli" if
// sanitization empties the name out.
func ContainerNameForCLI(cliType, model string) string {
	name := strings.ToLower(cliType)
	if model != "" {
		sanitizedModel := sanitizeModelFragment(model)
		if sanitizedModel != "" {
			name = name + "-" + sanitizedModel
		}
	}

	name = collapseHyphens(name)
	if len(name) > maxLabelLength {
		name = strings.TrimRight(name[:maxLabelLength], "-")
	}
	if name == "" {
		return "cli"
	}
	return name
}

func sanitizeModelFragment(model string) string {
	lower := strings.ToLower(model)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func collapseHyphens(s string) string {
	parts := strings.Split(s, "-")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "-")
}
