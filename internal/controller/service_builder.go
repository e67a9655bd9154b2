// Copyright Contributors to the CodeRun Operator project

package controller

import (
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	intstr "k8s.io/apimachinery/pkg/util/intstr"
)

// buildInputBridgeService builds the optional headless Service that fronts a
// run's Job pod for interactive input, gated on spec.enableInputBridge
// (SPEC_FULL.md §12.1). It is owned by the Job, not the CodeRun, so it is
// garbage-collected alongside the Job with no separate cleanup pass.
func buildInputBridgeService(namespace, name string, job *batchv1.Job, labels map[string]string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       namespace,
			Labels:          labels,
			OwnerReferences: []metav1.OwnerReference{jobOwnerRef(job)},
		},
		Spec: corev1.ServiceSpec{
			ClusterIP: corev1.ClusterIPNone,
			Selector:  map[string]string{"job-name": job.Name},
			Ports: []corev1.ServicePort{
				{Name: "http", Port: 8080, TargetPort: intstr.FromInt(8080), Protocol: corev1.ProtocolTCP},
			},
		},
	}
}
