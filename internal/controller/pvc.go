// Copyright Contributors to the CodeRun Operator project

package controller

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/5dlabs/coderun-operator/internal/config"
)

// buildPVC assembles the workspace PersistentVolumeClaim for a run. PVCs are
// never owned by a CodeRun (spec.md §4.5): they outlive any single run so a
// healer or shared-implementation workspace can be reused across runs, and
// cleanupResources never deletes them.
func buildPVC(namespace, name, service, persona, workspaceType string, storage config.StorageConfig) *corev1.PersistentVolumeClaim {
	size := storage.WorkspaceSize
	if size == "" {
		size = "10Gi"
	}

	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    pvcLabels(service, persona, workspaceType),
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(size),
				},
			},
		},
	}
	if storage.StorageClassName != "" {
		pvc.Spec.StorageClassName = &storage.StorageClassName
	}
	return pvc
}
