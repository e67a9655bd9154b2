// Copyright Contributors to the CodeRun Operator project

package naming

import (
	"strings"
	"testing"
)

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already safe", "my-service", "my-service"},
		{"uppercase", "MyService", "myservice"},
		{"spaces and underscores", "my service_name", "my-service-name"},
		{"leading trailing punctuation", "-_.weird-.name._-", "weird-.name"},
		{"invalid chars dropped", "rex/task#42!", "rextask42"},
		{"empty", "", ""},
		{"long value truncated", strings.Repeat("a", 80), strings.Repeat("a", 63)},
		{"truncation trims trailing punctuation", strings.Repeat("a", 62) + "--b", strings.Repeat("a", 62)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeLabel(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if len(got) > 63 {
				t.Errorf("SanitizeLabel(%q) produced value longer than 63: %q", tt.in, got)
			}
		})
	}
}

func TestSanitizeLabelIsDeterministic(t *testing.T) {
	in := "5DLabs-Rex_task Name"
	first := SanitizeLabel(in)
	for i := 0; i < 5; i++ {
		if got := SanitizeLabel(in); got != first {
			t.Fatalf("SanitizeLabel not deterministic: %q != %q", got, first)
		}
	}
}

func TestJobNameDeterministic(t *testing.T) {
	a := JobName("rex-task-42", 42, 3)
	b := JobName("rex-task-42", 42, 3)
	if a != b {
		t.Fatalf("JobName not deterministic: %q != %q", a, b)
	}
	if len(a) > 63 {
		t.Fatalf("JobName longer than 63 chars: %q", a)
	}
}

func TestConfigMapName(t *testing.T) {
	got := ConfigMapName("cto", "rex-task-42", "abcdef0123456789", "my-svc", 42, 3)
	want := "code-cto-rex-task-42-abcdef01-my-svc-t42-v3-files"
	if got != want {
		t.Errorf("ConfigMapName() = %q, want %q", got, want)
	}
}

func TestConfigMapNameFoldsUnderscoresAndDots(t *testing.T) {
	got := ConfigMapName("cto", "rex_task.42", "abcdef0123456789", "my.svc_name", 1, 0)
	if strings.ContainsAny(got, "_.") {
		t.Errorf("ConfigMapName() = %q, contains raw '_' or '.'", got)
	}
}

func TestContainerNameForCLI(t *testing.T) {
	tests := []struct {
		name    string
		cliType string
		model   string
		want    string
	}{
		{"claude with model", "claude", "claude-sonnet-4", "claude-claude-sonnet-4"},
		{"codex no model", "codex", "", "codex"},
		{"model with punctuation collapses hyphens", "claude", "Claude Sonnet 4.5!!", "claude-claude-sonnet-4-5"},
		{"empty cli falls back", "", "", "cli"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContainerNameForCLI(tt.cliType, tt.model)
			if got != tt.want {
				t.Errorf("ContainerNameForCLI(%q, %q) = %q, want %q", tt.cliType, tt.model, got, tt.want)
			}
		})
	}
}
