// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	"gopkg.in/yaml.v3"

	"github.com/5dlabs/coderun-operator/internal/config"
	operrors "github.com/5dlabs/coderun-operator/internal/errors"
)

// taskRequirementSecret is one entry of taskRequirements.secrets.
type taskRequirementSecret struct {
	Name string              `yaml:"name"`
	Keys []map[string]string `yaml:"keys,omitempty"`
}

// taskRequirementsDoc is the base64-decoded YAML shape of
// spec.taskRequirements.
type taskRequirementsDoc struct {
	Environment map[string]string       `yaml:"environment,omitempty"`
	Secrets     []taskRequirementSecret `yaml:"secrets,omitempty"`
}

// decodeTaskRequirements base64-decodes and YAML-parses raw. An empty raw
// returns a zero-value doc with no error.
func decodeTaskRequirements(raw string) (taskRequirementsDoc, error) {
	if raw == "" {
		return taskRequirementsDoc{}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return taskRequirementsDoc{}, operrors.NewValidationError("taskRequirements", fmt.Sprintf("invalid base64: %v", err))
	}
	var doc taskRequirementsDoc
	if err := yaml.Unmarshal(decoded, &doc); err != nil {
		return taskRequirementsDoc{}, operrors.NewValidationError("taskRequirements", fmt.Sprintf("invalid yaml: %v", err))
	}
	return doc, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// githubAppEnv builds the GitHub App identity env vars sourced from secret
// github-app-<githubApp>.
func githubAppEnv(githubApp string) []corev1.EnvVar {
	secretName := fmt.Sprintf("github-app-%s", githubApp)
	return []corev1.EnvVar{
		{
			Name: "GITHUB_APP_ID",
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
					Key:                  "app-id",
				},
			},
		},
		{
			Name: "GITHUB_APP_PRIVATE_KEY",
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
					Key:                  "private-key",
				},
			},
		},
	}
}

func cliAPIKeyEnv(binding config.ResolvedSecretBinding) corev1.EnvVar {
	return corev1.EnvVar{
		Name: binding.EnvVar,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: binding.SecretName},
				Key:                  binding.SecretKey,
			},
		},
	}
}

func specEnvPassthrough(env map[string]string) []corev1.EnvVar {
	var out []corev1.EnvVar
	for _, k := range sortedKeys(env) {
		out = append(out, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return out
}

// legacyEnvFromSecretsEnv renders the old single-key envFromSecrets list,
// used only when taskRequirements is absent or empty.
func legacyEnvFromSecretsEnv(entries []envFromSecretSpec) []corev1.EnvVar {
	var out []corev1.EnvVar
	for _, e := range entries {
		out = append(out, corev1.EnvVar{
			Name: e.Name,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: e.SecretName},
					Key:                  e.SecretKey,
				},
			},
		})
	}
	return out
}

// envFromSecretSpec mirrors v1alpha1.EnvFromSecret to avoid an import cycle
// concern; buildJob converts from the CRD type before calling this.
type envFromSecretSpec struct {
	Name       string
	SecretName string
	SecretKey  string
}

// taskRequirementsEnv implements step 4 of the env assembly: secrets with
// keys become individual secretKeyRefs, secrets without keys become whole
// envFrom secretRefs, and the static environment map becomes plain value
// env vars.
func taskRequirementsEnv(doc taskRequirementsDoc) ([]corev1.EnvVar, []corev1.EnvFromSource) {
	var envVars []corev1.EnvVar
	var envFrom []corev1.EnvFromSource

	for _, k := range sortedKeys(doc.Environment) {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: doc.Environment[k]})
	}

	for _, s := range doc.Secrets {
		if len(s.Keys) == 0 {
			envFrom = append(envFrom, corev1.EnvFromSource{
				SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: s.Name}},
			})
			continue
		}
		for _, keyMap := range s.Keys {
			for k8sKey, envName := range keyMap {
				envVars = append(envVars, corev1.EnvVar{
					Name: envName,
					ValueFrom: &corev1.EnvVarSource{
						SecretKeyRef: &corev1.SecretKeySelector{
							LocalObjectReference: corev1.LocalObjectReference{Name: s.Name},
							Key:                  k8sKey,
						},
					},
				})
			}
		}
	}
	return envVars, envFrom
}

// diagnosticEnv builds the three informational JSON env vars describing
// what was set in steps 3 and 4, for operator debugging.
func diagnosticEnv(specEnv map[string]string, doc taskRequirementsDoc) []corev1.EnvVar {
	workflowVars, _ := json.Marshal(sortedKeys(specEnv))
	requirementsVars, _ := json.Marshal(sortedKeys(doc.Environment))
	secretNames := make([]string, 0, len(doc.Secrets))
	for _, s := range doc.Secrets {
		secretNames = append(secretNames, s.Name)
	}
	sort.Strings(secretNames)
	secretSources, _ := json.Marshal(secretNames)

	return []corev1.EnvVar{
		{Name: "WORKFLOW_ENV_VARS", Value: string(workflowVars)},
		{Name: "REQUIREMENTS_ENV_VARS", Value: string(requirementsVars)},
		{Name: "REQUIREMENTS_SECRET_SOURCES", Value: string(secretSources)},
	}
}

// criticalSystemEnv builds the env vars that must always win over any
// user-provided or requirements-provided collision: run identity, CLI
// selection, and the MCP client config path.
func criticalSystemEnv(crName, workflowName, cliType, cliModel, containerName string, isCodex bool) []corev1.EnvVar {
	out := []corev1.EnvVar{
		{Name: "CODERUN_NAME", Value: crName},
		{Name: "WORKFLOW_NAME", Value: workflowName},
		{
			Name: "NAMESPACE",
			ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.namespace"},
			},
		},
		{Name: "CLI_TYPE", Value: cliType},
		{Name: "CLI_MODEL", Value: cliModel},
		{Name: "CLI_CONTAINER_NAME", Value: containerName},
		{Name: "MCP_CLIENT_CONFIG", Value: "/workspace/client-config.json"},
	}
	if isCodex {
		out = append(out,
			corev1.EnvVar{Name: "HOME", Value: "/root"},
			corev1.EnvVar{Name: "XDG_CONFIG_HOME", Value: "/root/.config"},
		)
	}
	return out
}

// dedupEnvKeepLast flattens duplicate env var names, keeping the value of
// the last occurrence while preserving the position of each name's first
// occurrence (SPEC_FULL.md/spec.md §9's single-pass equivalent of the
// source's two reverse/keep-last passes). Entries without a name (none are
// ever produced by this builder, but the rule is kept for safety) are
// preserved verbatim and appended after the named ones.
func dedupEnvKeepLast(vars []corev1.EnvVar) []corev1.EnvVar {
	var order []string
	last := make(map[string]corev1.EnvVar, len(vars))
	var anonymous []corev1.EnvVar

	for _, v := range vars {
		if v.Name == "" {
			anonymous = append(anonymous, v)
			continue
		}
		if _, ok := last[v.Name]; !ok {
			order = append(order, v.Name)
		}
		last[v.Name] = v
	}

	out := make([]corev1.EnvVar, 0, len(order)+len(anonymous))
	for _, name := range order {
		out = append(out, last[name])
	}
	return append(out, anonymous...)
}
