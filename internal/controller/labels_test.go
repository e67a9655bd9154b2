// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"testing"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

func baseCodeRun() *v1alpha1.CodeRun {
	cr := &v1alpha1.CodeRun{}
	cr.Name = "rex-task-42"
	cr.Spec.RunType = v1alpha1.RunTypeImplementation
	cr.Spec.TaskID = 42
	cr.Spec.ContextVersion = 3
	cr.Spec.Service = "my-svc"
	cr.Spec.GithubApp = "5DLabs-Rex"
	return cr
}

func TestBuildLabelsFixedSet(t *testing.T) {
	cr := baseCodeRun()
	labels := buildLabels(cr, "claude", "opus-4", "claude-opus-4", "rex")

	want := map[string]string{
		labelApp:            appValue,
		labelComponent:      componentValue,
		labelCleanupScope:   "run",
		labelCleanupKind:    "coderun",
		labelCleanupRun:     "rex-task-42",
		labelJobType:        jobTypeValue,
		labelTaskType:       "implementation",
		labelTaskID:         "42",
		labelProjectName:    "my-svc",
		labelService:        "my-svc",
		labelGithubUser:     "5dlabs-rex",
		labelContextVersion: "3",
		labelCliType:        "claude",
		labelCliModel:       "opus-4",
		labelCliContainer:   "claude-opus-4",
	}
	for k, v := range want {
		if got := labels[k]; got != v {
			t.Errorf("labels[%q] = %q, want %q", k, got, v)
		}
	}
	if _, ok := labels[labelLinearSession]; ok {
		t.Error("linear-session label set without linearIntegration enabled")
	}
}

func TestBuildLabelsOmitsEmptyModel(t *testing.T) {
	cr := baseCodeRun()
	labels := buildLabels(cr, "claude", "", "cli", "rex")
	if _, ok := labels[labelCliModel]; ok {
		t.Error("cli-model label should be absent when model is empty")
	}
}

func TestBuildLabelsPRNumber(t *testing.T) {
	cr := baseCodeRun()
	cr.Spec.Env = map[string]string{"PR_NUMBER": "17"}
	labels := buildLabels(cr, "claude", "opus-4", "claude-opus-4", "rex")
	if labels[labelPRNumber] != "17" {
		t.Errorf("pr-number label = %q, want 17", labels[labelPRNumber])
	}
}

func TestBuildLabelsLinearIntegration(t *testing.T) {
	cr := baseCodeRun()
	cr.Spec.LinearIntegration = &v1alpha1.LinearIntegration{
		Enabled:   true,
		SessionID: "sess-1",
		IssueID:   "ISSUE-9",
		TeamID:    "TEAM-1",
	}
	labels := buildLabels(cr, "claude", "opus-4", "claude-opus-4", "rex")
	if labels[labelLinearSession] != "sess-1" {
		t.Errorf("linear-session = %q", labels[labelLinearSession])
	}
	if labels[labelLinearIssue] != "issue-9" {
		t.Errorf("linear-issue = %q", labels[labelLinearIssue])
	}
	if labels[labelAgentType] != "rex" {
		t.Errorf("agent-type = %q", labels[labelAgentType])
	}
}

func TestWorkspaceTypeFor(t *testing.T) {
	tests := []struct {
		name    string
		persona string
		healer  bool
		want    string
	}{
		{"healer wins", "rex", true, "healer"},
		{"implementation agent", "rex", false, "shared"},
		{"support agent", "cleo", false, "isolated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workspaceTypeFor(tt.persona, tt.healer); got != tt.want {
				t.Errorf("workspaceTypeFor(%q, %v) = %q, want %q", tt.persona, tt.healer, got, tt.want)
			}
		})
	}
}

func TestCleanupSelector(t *testing.T) {
	sel := cleanupSelector("5DLabs-Rex", "My Svc")
	if sel[labelGithubUser] != "5dlabs-rex" {
		t.Errorf("github-user selector = %q", sel[labelGithubUser])
	}
	if sel[labelService] != "my-svc" {
		t.Errorf("service selector = %q", sel[labelService])
	}
	if sel[labelApp] != appValue || sel[labelComponent] != componentValue {
		t.Error("cleanup selector missing fixed app/component scope")
	}
}
