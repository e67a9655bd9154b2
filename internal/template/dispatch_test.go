// Copyright Contributors to the CodeRun Operator project

package template

import (
	"testing"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

func TestSystemPromptPath(t *testing.T) {
	tests := []struct {
		name      string
		runType   v1alpha1.RunType
		githubApp string
		want      string
	}{
		{"implementation defaults to rex/coder", v1alpha1.RunTypeImplementation, "5DLabs-Rex", "agents/rex/coder/system-prompt.md.hbs"},
		{"unknown agent falls back to rex persona", v1alpha1.RunTypeImplementation, "5DLabs-Unknown", "agents/rex/coder/system-prompt.md.hbs"},
		{"cleo forces quality on a coder run", v1alpha1.RunTypeImplementation, "5DLabs-Cleo", "agents/cleo/quality/system-prompt.md.hbs"},
		{"cleo on an explicit test run keeps test", v1alpha1.RunTypeTest, "5DLabs-Cleo", "agents/cleo/test/system-prompt.md.hbs"},
		{"morgan forces docs on a coder run", v1alpha1.RunTypeImplementation, "5DLabs-Morgan", "agents/morgan/docs/system-prompt.md.hbs"},
		{"documentation run type maps to intake", v1alpha1.RunTypeDocumentation, "5DLabs-Morgan", "agents/morgan/intake/system-prompt.md.hbs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := &v1alpha1.CodeRun{Spec: v1alpha1.CodeRunSpec{RunType: tt.runType, GithubApp: tt.githubApp}}
			if got := SystemPromptPath(cr); got != tt.want {
				t.Errorf("SystemPromptPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSystemPromptFallbackPathDropsAgentSegment(t *testing.T) {
	cr := &v1alpha1.CodeRun{Spec: v1alpha1.CodeRunSpec{RunType: v1alpha1.RunTypeTest, GithubApp: "5DLabs-Cleo"}}
	if got := SystemPromptFallbackPath(cr); got != "agents/test/system-prompt.md.hbs" {
		t.Errorf("SystemPromptFallbackPath() = %q, want agents/test/system-prompt.md.hbs", got)
	}
}

func TestResolvePersonaDefaultsToRex(t *testing.T) {
	if got := resolvePersona(""); got != "rex" {
		t.Errorf("resolvePersona(\"\") = %q, want rex", got)
	}
	if got := resolvePersona("5DLabs-Cleo"); got != "cleo" {
		t.Errorf("resolvePersona(5DLabs-Cleo) = %q, want cleo", got)
	}
}
