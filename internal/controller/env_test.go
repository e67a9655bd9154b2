// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"encoding/base64"
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/5dlabs/coderun-operator/internal/config"
)

func TestDedupEnvKeepLastPreservesFirstOccurrenceOrder(t *testing.T) {
	in := []corev1.EnvVar{
		{Name: "A", Value: "1"},
		{Name: "B", Value: "2"},
		{Name: "A", Value: "3"},
		{Name: "C", Value: "4"},
		{Name: "B", Value: "5"},
	}
	out := dedupEnvKeepLast(in)

	wantOrder := []string{"A", "B", "C"}
	wantValue := map[string]string{"A": "3", "B": "5", "C": "4"}

	if len(out) != len(wantOrder) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(wantOrder))
	}
	for i, v := range out {
		if v.Name != wantOrder[i] {
			t.Errorf("out[%d].Name = %q, want %q", i, v.Name, wantOrder[i])
		}
		if v.Value != wantValue[v.Name] {
			t.Errorf("out[%d].Value = %q, want %q", i, v.Value, wantValue[v.Name])
		}
	}
}

func TestDecodeTaskRequirementsEmpty(t *testing.T) {
	doc, err := decodeTaskRequirements("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Environment) != 0 || len(doc.Secrets) != 0 {
		t.Fatalf("expected zero-value doc, got %+v", doc)
	}
}

func TestDecodeTaskRequirementsInvalidBase64(t *testing.T) {
	if _, err := decodeTaskRequirements("not-valid-base64!!"); err == nil {
		t.Fatal("expected an error for invalid base64")
	}
}

func TestDecodeTaskRequirementsRoundTrip(t *testing.T) {
	yamlDoc := "environment:\n  FOO: bar\nsecrets:\n  - name: my-secret\n    keys:\n      - API_KEY: MY_API_KEY\n  - name: whole-secret\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(yamlDoc))

	doc, err := decodeTaskRequirements(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Environment["FOO"] != "bar" {
		t.Errorf("environment.FOO = %q, want bar", doc.Environment["FOO"])
	}
	if len(doc.Secrets) != 2 {
		t.Fatalf("len(secrets) = %d, want 2", len(doc.Secrets))
	}

	envVars, envFrom := taskRequirementsEnv(doc)
	if len(envFrom) != 1 || envFrom[0].SecretRef.Name != "whole-secret" {
		t.Errorf("expected one whole-secret envFrom, got %+v", envFrom)
	}

	foundAPIKey := false
	foundEnvironment := false
	for _, v := range envVars {
		if v.Name == "MY_API_KEY" && v.ValueFrom != nil && v.ValueFrom.SecretKeyRef.Name == "my-secret" && v.ValueFrom.SecretKeyRef.Key == "API_KEY" {
			foundAPIKey = true
		}
		if v.Name == "FOO" && v.Value == "bar" {
			foundEnvironment = true
		}
	}
	if !foundAPIKey {
		t.Error("expected a secretKeyRef env var for MY_API_KEY")
	}
	if !foundEnvironment {
		t.Error("expected a plain FOO=bar env var")
	}
}

func TestCLIAPIKeyEnv(t *testing.T) {
	binding := config.ResolvedSecretBinding{EnvVar: "ANTHROPIC_API_KEY", SecretName: "cto-secrets", SecretKey: "anthropic"}
	v := cliAPIKeyEnv(binding)
	if v.Name != "ANTHROPIC_API_KEY" {
		t.Errorf("Name = %q", v.Name)
	}
	if v.ValueFrom.SecretKeyRef.Name != "cto-secrets" || v.ValueFrom.SecretKeyRef.Key != "anthropic" {
		t.Errorf("unexpected secretKeyRef: %+v", v.ValueFrom.SecretKeyRef)
	}
}

func TestCriticalSystemEnvCodexAddsHomeVars(t *testing.T) {
	vars := criticalSystemEnv("cr-1", "wf-1", "codex", "o1", "codex-o1", true)
	names := map[string]string{}
	for _, v := range vars {
		names[v.Name] = v.Value
	}
	if names["HOME"] != "/root" || names["XDG_CONFIG_HOME"] != "/root/.config" {
		t.Errorf("codex HOME/XDG_CONFIG_HOME not set: %+v", names)
	}
	if names["MCP_CLIENT_CONFIG"] != "/workspace/client-config.json" {
		t.Errorf("MCP_CLIENT_CONFIG = %q", names["MCP_CLIENT_CONFIG"])
	}
}

func TestCriticalSystemEnvNonCodexOmitsHomeVars(t *testing.T) {
	vars := criticalSystemEnv("cr-1", "wf-1", "claude", "opus", "claude-opus", false)
	for _, v := range vars {
		if v.Name == "HOME" || v.Name == "XDG_CONFIG_HOME" {
			t.Errorf("unexpected %s set for non-codex run", v.Name)
		}
	}
}
