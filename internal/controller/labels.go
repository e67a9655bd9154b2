// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"fmt"
	"strconv"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
	"github.com/5dlabs/coderun-operator/internal/agent"
	"github.com/5dlabs/coderun-operator/internal/naming"
)

const (
	labelApp             = "app"
	labelComponent       = "component"
	labelCleanupScope    = "cto.5dlabs.io/cleanup-scope"
	labelCleanupKind     = "cto.5dlabs.io/cleanup-kind"
	labelCleanupRun      = "cto.5dlabs.io/cleanup-run"
	labelJobType         = "job-type"
	labelTaskType        = "task-type"
	labelTaskID          = "task-id"
	labelProjectName     = "project-name"
	labelService         = "service"
	labelGithubUser      = "github-user"
	labelContextVersion  = "context-version"
	labelCliType         = "cli-type"
	labelCliModel        = "cli-model"
	labelCliContainer    = "cli-container"
	labelPRNumber        = "pr-number"
	labelLinearSession   = "linear-session"
	labelLinearIssue     = "cto.5dlabs.io/linear-issue"
	labelAgentType       = "cto.5dlabs.io/agent-type"

	appValue       = "controller"
	componentValue = "code-runner"
	jobTypeValue   = "code"
)

// buildLabels implements the fixed label set applied to the Job, its pod
// template, and the ConfigMap (spec.md §4.5 "Labels"). cliContainerName is
// the already-sanitized main container name; persona is the resolved agent
// short name used for the linear agent-type label.
func buildLabels(cr *v1alpha1.CodeRun, cliType, cliModel, cliContainerName, persona string) map[string]string {
	githubUser := cr.Spec.GithubApp
	if githubUser == "" {
		githubUser = cr.Spec.GithubUser
	}
	if githubUser == "" {
		githubUser = "unknown"
	}

	labels := map[string]string{
		labelApp:            appValue,
		labelComponent:      componentValue,
		labelCleanupScope:   "run",
		labelCleanupKind:    "coderun",
		labelCleanupRun:     naming.SanitizeLabel(cr.Name),
		labelJobType:        jobTypeValue,
		labelTaskType:       string(cr.Spec.RunType),
		labelTaskID:         strconv.Itoa(int(cr.Spec.TaskID)),
		labelProjectName:    naming.SanitizeLabel(cr.Spec.Service),
		labelService:        naming.SanitizeLabel(cr.Spec.Service),
		labelGithubUser:     naming.SanitizeLabel(githubUser),
		labelContextVersion: strconv.Itoa(int(cr.Spec.ContextVersion)),
		labelCliType:        naming.SanitizeLabel(cliType),
		labelCliContainer:   naming.SanitizeLabel(cliContainerName),
	}

	if cliModel != "" {
		labels[labelCliModel] = naming.SanitizeLabel(cliModel)
	}
	if pr := cr.Spec.Env["PR_NUMBER"]; pr != "" {
		labels[labelPRNumber] = naming.SanitizeLabel(pr)
	}
	if li := cr.Spec.LinearIntegration; li != nil && li.Enabled {
		if li.SessionID != "" {
			labels[labelLinearSession] = naming.SanitizeLabel(li.SessionID)
		}
		if li.IssueID != "" {
			labels[labelLinearIssue] = naming.SanitizeLabel(li.IssueID)
		}
		labels[labelAgentType] = naming.SanitizeLabel(persona)
	}

	return labels
}

// cleanupSelector is the label set used to find a CodeRun's sibling
// Jobs/ConfigMaps during cleanupResources: everything sharing the same
// github-user and service, scoped to code-runner resources.
func cleanupSelector(githubUser, service string) map[string]string {
	return map[string]string{
		labelApp:        appValue,
		labelComponent:  componentValue,
		labelGithubUser: naming.SanitizeLabel(githubUser),
		labelService:    naming.SanitizeLabel(service),
	}
}

// pvcLabels is the label set applied to the workspace PVC (spec.md §4.5
// step 3).
func pvcLabels(service, persona, workspaceType string) map[string]string {
	labels := map[string]string{
		labelApp:       appValue,
		labelComponent: componentValue,
		labelService:   naming.SanitizeLabel(service),
	}
	if persona != "" {
		labels["agent"] = naming.SanitizeLabel(persona)
	}
	if workspaceType != "" {
		labels["workspace-type"] = naming.SanitizeLabel(workspaceType)
	}
	return labels
}

func workspaceTypeFor(persona string, healer bool) string {
	if healer {
		return "healer"
	}
	if agent.IsImplementation(persona) {
		return "shared"
	}
	return "isolated"
}

func githubAppSecretName(githubApp string) string {
	return fmt.Sprintf("github-app-%s", githubApp)
}
