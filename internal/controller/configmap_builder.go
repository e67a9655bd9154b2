// Copyright Contributors to the CodeRun Operator project

package controller

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

// buildConfigMap wraps the rendered template files (container.sh, the CLI
// memory file, settings, client-config.json, mcp.json, guideline docs, and
// hooks) into the per-run ConfigMap. reconcileCreateOrUpdate owns the
// GET-then-CREATE-or-REPLACE semantics; this is a pure constructor.
func buildConfigMap(cr *v1alpha1.CodeRun, name string, data map[string]string, labels map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: cr.Namespace,
			Labels:    labels,
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion: cr.APIVersion,
					Kind:       cr.Kind,
					Name:       cr.Name,
					UID:        cr.UID,
					Controller: boolPtr(true),
				},
			},
		},
		Data: data,
	}
}
