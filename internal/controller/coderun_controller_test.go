// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
	"github.com/5dlabs/coderun-operator/internal/config"
	operrors "github.com/5dlabs/coderun-operator/internal/errors"
)

func TestEnrichCLIConfigMergesDefaultsWithoutOverwritingUserValues(t *testing.T) {
	cr := baseCodeRun()
	cr.Spec.CLIConfig = &v1alpha1.CLIConfig{CLIType: v1alpha1.CLIClaude, Model: "user-pinned-model"}

	r := &CodeRunReconciler{Config: &config.Config{
		Agent: config.AgentDefaults{
			AgentCLIConfigs: map[string]config.CLIDefaults{
				"5DLabs-Rex": {Model: "default-model", ModelRotation: "auto", Settings: map[string]string{"verbosity": "high"}},
			},
		},
	}}

	r.enrichCLIConfig(cr, "rex")

	if cr.Spec.CLIConfig.Model != "user-pinned-model" {
		t.Errorf("user-set model was overwritten: %q", cr.Spec.CLIConfig.Model)
	}
	if cr.Spec.CLIConfig.ModelRotation != "auto" {
		t.Errorf("missing modelRotation not inherited: %q", cr.Spec.CLIConfig.ModelRotation)
	}
	if cr.Spec.CLIConfig.Settings["verbosity"] != "high" {
		t.Errorf("missing setting not inherited: %+v", cr.Spec.CLIConfig.Settings)
	}
}

func TestEnrichCLIConfigSetsProviderSettings(t *testing.T) {
	cr := baseCodeRun()
	cr.Spec.CLIConfig = &v1alpha1.CLIConfig{CLIType: v1alpha1.CLICodex}

	r := &CodeRunReconciler{Config: &config.Config{
		Agent: config.AgentDefaults{
			CLIProviders: map[string]string{"codex": "openai"},
		},
		Secrets: config.SecretsConfig{
			ProviderAPIKeys: map[string]config.ProviderAPIKey{"openai": {SecretName: "cto-secrets", SecretKey: "openai"}},
		},
	}}

	r.enrichCLIConfig(cr, "rex")

	if cr.Spec.CLIConfig.Settings["provider"] != "openai" {
		t.Errorf("provider setting = %q, want openai", cr.Spec.CLIConfig.Settings["provider"])
	}
	if cr.Spec.CLIConfig.Settings["modelProvider"] == "" {
		t.Error("expected modelProvider setting to be populated")
	}
}

func TestIsFatalClassifiesConfigAndValidationErrors(t *testing.T) {
	if !isFatal(operrors.NewConfigError("op", nil)) {
		t.Error("ConfigError should be fatal")
	}
	if !isFatal(operrors.NewValidationError("field", "msg")) {
		t.Error("ValidationError should be fatal")
	}
}

func TestEnsurePVCCreatesWhenAbsent(t *testing.T) {
	cr := baseCodeRun()
	cr.Namespace = "cto"

	fakeClient := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
	r := &CodeRunReconciler{Client: fakeClient, Config: &config.Config{Storage: config.StorageConfig{WorkspaceSize: "5Gi"}}}

	if err := r.ensurePVC(context.Background(), cr, "workspace-rex-my-svc", "rex", "shared"); err != nil {
		t.Fatalf("ensurePVC: %v", err)
	}

	var pvc corev1.PersistentVolumeClaim
	if err := fakeClient.Get(context.Background(), client.ObjectKey{Namespace: "cto", Name: "workspace-rex-my-svc"}, &pvc); err != nil {
		t.Fatalf("expected pvc to be created: %v", err)
	}
}

func TestEnsurePVCIdempotentWhenAlreadyPresent(t *testing.T) {
	cr := baseCodeRun()
	cr.Namespace = "cto"
	existing := &corev1.PersistentVolumeClaim{}
	existing.Name = "workspace-rex-my-svc"
	existing.Namespace = "cto"

	fakeClient := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(existing).Build()
	r := &CodeRunReconciler{Client: fakeClient, Config: &config.Config{}}

	if err := r.ensurePVC(context.Background(), cr, "workspace-rex-my-svc", "rex", "shared"); err != nil {
		t.Fatalf("ensurePVC on existing pvc should be a no-op: %v", err)
	}
}
