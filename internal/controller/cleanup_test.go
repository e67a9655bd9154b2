// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"context"
	"testing"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("adding client-go scheme: %v", err)
	}
	if err := v1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("adding v1alpha1 scheme: %v", err)
	}
	return scheme
}

func selectorLabels() map[string]string {
	return cleanupSelector("5DLabs-Rex", "my-svc")
}

func TestCleanupResourcesSkipsActiveJob(t *testing.T) {
	activeJob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "old-job", Namespace: "cto", Labels: selectorLabels()},
	}
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name: "old-cm", Namespace: "cto", Labels: selectorLabels(),
			OwnerReferences: []metav1.OwnerReference{{APIVersion: "batch/v1", Kind: "Job", Name: "old-job", UID: "job-uid"}},
		},
	}

	fakeClient := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(activeJob, cm).Build()
	r := &CodeRunReconciler{Client: fakeClient}

	if err := r.cleanupResources(context.Background(), "5DLabs-Rex", "my-svc", "current-cm"); err != nil {
		t.Fatalf("cleanupResources: %v", err)
	}

	var gotCM corev1.ConfigMap
	if err := fakeClient.Get(context.Background(), client.ObjectKey{Namespace: "cto", Name: "old-cm"}, &gotCM); err != nil {
		t.Errorf("expected old-cm to survive cleanup (owning job still active): %v", err)
	}
}

func TestCleanupResourcesDeletesCompletedJobAndOrphanedConfigMap(t *testing.T) {
	completionTime := metav1.Now()
	doneJob := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "done-job", Namespace: "cto", Labels: selectorLabels()},
		Status:     batchv1.JobStatus{CompletionTime: &completionTime},
	}
	orphanCM := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "orphan-cm", Namespace: "cto", Labels: selectorLabels()},
	}

	fakeClient := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(doneJob, orphanCM).Build()
	r := &CodeRunReconciler{Client: fakeClient}

	if err := r.cleanupResources(context.Background(), "5DLabs-Rex", "my-svc", "current-cm"); err != nil {
		t.Fatalf("cleanupResources: %v", err)
	}

	var jobs batchv1.JobList
	_ = fakeClient.List(context.Background(), &jobs)
	if len(jobs.Items) != 0 {
		t.Errorf("expected completed job to be deleted, found %d", len(jobs.Items))
	}

	var cms corev1.ConfigMapList
	_ = fakeClient.List(context.Background(), &cms)
	if len(cms.Items) != 0 {
		t.Errorf("expected orphaned, unreferenced configmap to be deleted, found %d", len(cms.Items))
	}
}

func TestCleanupResourcesNeverDeletesCurrentRunConfigMap(t *testing.T) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "current-cm", Namespace: "cto", Labels: selectorLabels()},
	}
	fakeClient := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(cm).Build()
	r := &CodeRunReconciler{Client: fakeClient}

	if err := r.cleanupResources(context.Background(), "5DLabs-Rex", "my-svc", "current-cm"); err != nil {
		t.Fatalf("cleanupResources: %v", err)
	}

	var got corev1.ConfigMap
	if err := fakeClient.Get(context.Background(), client.ObjectKey{Namespace: "cto", Name: "current-cm"}, &got); err != nil {
		t.Errorf("current run's own configmap must never be deleted by cleanup: %v", err)
	}
}
