// Copyright Contributors to the CodeRun Operator project

package cron

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

type recordingCleaner struct {
	calls [][2]string
}

func (c *recordingCleaner) CleanupResources(ctx context.Context, githubUser, service, currentCMName string) error {
	c.calls = append(c.calls, [2]string{githubUser, service})
	return nil
}

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

func TestRunOnceDedupsByGithubUserAndService(t *testing.T) {
	runA := &v1alpha1.CodeRun{}
	runA.Name = "a"
	runA.Namespace = "cto"
	runA.Spec.GithubApp = "5DLabs-Rex"
	runA.Spec.Service = "my-svc"

	runB := &v1alpha1.CodeRun{}
	runB.Name = "b"
	runB.Namespace = "cto"
	runB.Spec.GithubApp = "5DLabs-Rex"
	runB.Spec.Service = "my-svc"

	runC := &v1alpha1.CodeRun{}
	runC.Name = "c"
	runC.Namespace = "cto"
	runC.Spec.GithubApp = "5DLabs-Blaze"
	runC.Spec.Service = "other-svc"

	fakeClient := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(runA, runB, runC).Build()
	cleaner := &recordingCleaner{}
	s := &Sweeper{Client: fakeClient, Cleaner: cleaner, Log: logr.Discard()}

	if err := s.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if len(cleaner.calls) != 2 {
		t.Fatalf("expected 2 distinct (githubUser, service) pairs, got %d: %+v", len(cleaner.calls), cleaner.calls)
	}
}
