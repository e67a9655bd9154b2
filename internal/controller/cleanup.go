// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"context"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// CleanupResources exports cleanupResources for the periodic sweep in
// internal/cron, which cannot call the unexported method directly from
// outside the package.
func (r *CodeRunReconciler) CleanupResources(ctx context.Context, githubUser, service, currentCMName string) error {
	return r.cleanupResources(ctx, githubUser, service, currentCMName)
}

// cleanupResources deletes Jobs and ConfigMaps belonging to earlier runs of
// the same (githubUser, service) pair, per spec.md "cleanupResources". It
// never touches PVCs and fails safe: any listing error skips deletion rather
// than risking an in-use resource.
func (r *CodeRunReconciler) cleanupResources(ctx context.Context, githubUser, service, currentCMName string) error {
	logger := log.FromContext(ctx)
	selector := client.MatchingLabels(cleanupSelector(githubUser, service))

	var jobs batchv1.JobList
	if err := r.List(ctx, &jobs, selector); err != nil {
		logger.Info("cleanup: skipping, job listing failed", "error", err.Error())
		return nil
	}

	var pods corev1.PodList
	if err := r.List(ctx, &pods, selector); err != nil {
		logger.Info("cleanup: skipping, pod listing failed", "error", err.Error())
		return nil
	}

	var configMaps corev1.ConfigMapList
	if err := r.List(ctx, &configMaps, selector); err != nil {
		logger.Info("cleanup: skipping, configmap listing failed", "error", err.Error())
		return nil
	}

	activeJobNames := map[string]bool{}
	for _, j := range jobs.Items {
		if jobIsActive(&j, pods.Items) {
			activeJobNames[j.Name] = true
		}
	}

	for i := range jobs.Items {
		job := &jobs.Items[i]
		if jobIsActive(job, pods.Items) {
			continue
		}
		propagation := metav1.DeletePropagationBackground
		if err := r.Delete(ctx, job, &client.DeleteOptions{PropagationPolicy: &propagation}); err != nil && !apierrors.IsNotFound(err) {
			logger.Info("cleanup: failed to delete job", "job", job.Name, "error", err.Error())
		}
	}

	volumeReferenced := referencedConfigMapNames(jobs.Items, activeJobNames, pods.Items)

	for i := range configMaps.Items {
		cm := &configMaps.Items[i]
		if cm.Name == currentCMName {
			continue
		}
		if ownedByActiveJob(cm, jobs.Items, activeJobNames) {
			continue
		}
		if cm.OwnerReferences == nil && volumeReferenced[cm.Name] {
			continue
		}
		if err := r.Delete(ctx, cm); err != nil && !apierrors.IsNotFound(err) {
			logger.Info("cleanup: failed to delete configmap", "configmap", cm.Name, "error", err.Error())
		}
	}

	return nil
}

func jobIsActive(job *batchv1.Job, allPods []corev1.Pod) bool {
	if job.Status.CompletionTime == nil && job.Status.Failed == 0 {
		return true
	}
	for _, p := range allPods {
		if p.Labels["job-name"] != job.Name {
			continue
		}
		switch p.Status.Phase {
		case corev1.PodRunning, corev1.PodPending:
			return true
		}
	}
	return false
}

func ownedByActiveJob(cm *corev1.ConfigMap, jobs []batchv1.Job, activeJobNames map[string]bool) bool {
	for _, owner := range cm.OwnerReferences {
		if owner.Kind != "Job" {
			continue
		}
		if activeJobNames[owner.Name] {
			return true
		}
	}
	return false
}

// referencedConfigMapNames returns the set of ConfigMap names mounted by any
// active Job's pod template volumes, used to protect unowned ConfigMaps that
// an active Job still mounts.
func referencedConfigMapNames(jobs []batchv1.Job, activeJobNames map[string]bool, pods []corev1.Pod) map[string]bool {
	refs := map[string]bool{}
	for _, j := range jobs {
		if !activeJobNames[j.Name] {
			continue
		}
		for _, v := range j.Spec.Template.Spec.Volumes {
			if v.ConfigMap != nil {
				refs[v.ConfigMap.Name] = true
			}
			if v.Projected != nil {
				for _, src := range v.Projected.Sources {
					if src.ConfigMap != nil {
						refs[src.ConfigMap.Name] = true
					}
				}
			}
		}
	}
	for _, p := range pods {
		switch p.Status.Phase {
		case corev1.PodRunning, corev1.PodPending:
		default:
			continue
		}
		for _, v := range p.Spec.Volumes {
			if v.ConfigMap != nil {
				refs[v.ConfigMap.Name] = true
			}
			if v.Projected != nil {
				for _, src := range v.Projected.Sources {
					if src.ConfigMap != nil {
						refs[src.ConfigMap.Name] = true
					}
				}
			}
		}
	}
	return refs
}
