// Copyright Contributors to the CodeRun Operator project

//go:build integration

// See suite_test.go for an explanation of the "integration" build tag pattern.

package controller

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

var _ = Describe("CodeRunController", func() {
	const runNamespace = "default"

	Context("When creating a CodeRun", func() {
		It("Should create a workspace PVC, a ConfigMap, and a Job", func() {
			runName := "test-rex-task-1"

			cr := &v1alpha1.CodeRun{
				ObjectMeta: metav1.ObjectMeta{Name: runName, Namespace: runNamespace},
				Spec: v1alpha1.CodeRunSpec{
					RunType:        v1alpha1.RunTypeImplementation,
					TaskID:         1,
					Service:        "my-svc",
					ContextVersion: 1,
					GithubApp:      "5DLabs-Rex",
					RepositoryURL:  "https://github.com/5dlabs/my-svc",
				},
			}

			By("Creating the CodeRun")
			Expect(k8sClient.Create(ctx, cr)).To(Succeed())

			By("Checking a Job is created and the CodeRun status reflects it")
			lookupKey := types.NamespacedName{Name: runName, Namespace: runNamespace}
			createdCR := &v1alpha1.CodeRun{}
			Eventually(func() string {
				if err := k8sClient.Get(ctx, lookupKey, createdCR); err != nil {
					return ""
				}
				return createdCR.Status.JobName
			}, timeout, interval).ShouldNot(BeEmpty())

			Expect(createdCR.Status.Phase).To(Equal("Running"))

			By("Checking the workspace PVC exists")
			pvc := &corev1.PersistentVolumeClaim{}
			Eventually(func() error {
				return k8sClient.Get(ctx, types.NamespacedName{Name: "workspace-my-svc", Namespace: runNamespace}, pvc)
			}, timeout, interval).Should(Succeed())

			By("Checking the rendered ConfigMap exists and carries the Job owner reference")
			job := &batchv1.Job{}
			Eventually(func() error {
				return k8sClient.Get(ctx, types.NamespacedName{Name: createdCR.Status.JobName, Namespace: runNamespace}, job)
			}, timeout, interval).Should(Succeed())

			cm := &corev1.ConfigMap{}
			Eventually(func() bool {
				for _, v := range job.Spec.Template.Spec.Volumes {
					if v.Name == "task-files" && v.ConfigMap != nil {
						if err := k8sClient.Get(ctx, types.NamespacedName{Name: v.ConfigMap.Name, Namespace: runNamespace}, cm); err != nil {
							return false
						}
						return true
					}
				}
				return false
			}, timeout, interval).Should(BeTrue())

			foundJobOwner := false
			for _, ref := range cm.OwnerReferences {
				if ref.Kind == "Job" && ref.Name == job.Name {
					foundJobOwner = true
				}
			}
			Expect(foundJobOwner).To(BeTrue())
			Expect(cm.Data).To(HaveKey("container.sh"))
			Expect(cm.Data).To(HaveKey("CLAUDE.md"))
		})

		It("Should be idempotent on a second reconcile", func() {
			runName := "test-rex-task-2"
			cr := &v1alpha1.CodeRun{
				ObjectMeta: metav1.ObjectMeta{Name: runName, Namespace: runNamespace},
				Spec: v1alpha1.CodeRunSpec{
					RunType:        v1alpha1.RunTypeImplementation,
					TaskID:         2,
					Service:        "my-svc",
					ContextVersion: 1,
					GithubApp:      "5DLabs-Rex",
				},
			}
			Expect(k8sClient.Create(ctx, cr)).To(Succeed())

			lookupKey := types.NamespacedName{Name: runName, Namespace: runNamespace}
			createdCR := &v1alpha1.CodeRun{}
			Eventually(func() string {
				if err := k8sClient.Get(ctx, lookupKey, createdCR); err != nil {
					return ""
				}
				return createdCR.Status.JobName
			}, timeout, interval).ShouldNot(BeEmpty())
			firstJobName := createdCR.Status.JobName

			By("Annotating the CodeRun to trigger a second reconcile without changing its spec")
			Expect(k8sClient.Get(ctx, lookupKey, createdCR)).To(Succeed())
			if createdCR.Annotations == nil {
				createdCR.Annotations = map[string]string{}
			}
			createdCR.Annotations["test.cto.5dlabs.io/touch"] = "1"
			Expect(k8sClient.Update(context.Background(), createdCR)).To(Succeed())

			Consistently(func() string {
				if err := k8sClient.Get(ctx, lookupKey, createdCR); err != nil {
					return ""
				}
				return createdCR.Status.JobName
			}, "2s", interval).Should(Equal(firstJobName))
		})
	})
})
