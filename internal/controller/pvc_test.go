// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"testing"

	"github.com/5dlabs/coderun-operator/internal/config"
)

func TestBuildPVCDefaultsSize(t *testing.T) {
	pvc := buildPVC("cto", "workspace-rex-my-svc", "my-svc", "rex", "shared", config.StorageConfig{})
	got := pvc.Spec.Resources.Requests["storage"]
	if got.String() != "10Gi" {
		t.Errorf("default workspace size = %s, want 10Gi", got.String())
	}
	if pvc.Spec.StorageClassName != nil {
		t.Error("expected nil storage class when unconfigured")
	}
}

func TestBuildPVCConfiguredSizeAndClass(t *testing.T) {
	storage := config.StorageConfig{WorkspaceSize: "20Gi", StorageClassName: "fast-ssd"}
	pvc := buildPVC("cto", "workspace-rex-my-svc", "my-svc", "rex", "shared", storage)

	got := pvc.Spec.Resources.Requests["storage"]
	if got.String() != "20Gi" {
		t.Errorf("workspace size = %s, want 20Gi", got.String())
	}
	if pvc.Spec.StorageClassName == nil || *pvc.Spec.StorageClassName != "fast-ssd" {
		t.Errorf("storage class = %v, want fast-ssd", pvc.Spec.StorageClassName)
	}
}

func TestBuildPVCAccessMode(t *testing.T) {
	pvc := buildPVC("cto", "workspace-rex-my-svc", "my-svc", "rex", "shared", config.StorageConfig{})
	if len(pvc.Spec.AccessModes) != 1 || pvc.Spec.AccessModes[0] != "ReadWriteOnce" {
		t.Errorf("access modes = %+v, want [ReadWriteOnce]", pvc.Spec.AccessModes)
	}
}
