// Copyright Contributors to the CodeRun Operator project

// Package cron schedules the periodic stale-resource sweep described in
// SPEC_FULL.md §12.3: reconcileCreateOrUpdate only cleans up the
// (github-user, service) pair it just touched, so a service that stops
// producing new runs would otherwise accumulate completed Jobs and orphaned
// ConfigMaps forever. This package re-lists every CodeRun on a schedule and
// runs the same cleanup for each distinct pair it finds.
package cron

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
)

// Cleaner matches (*controller.CodeRunReconciler).CleanupResources without
// importing the controller package, avoiding an import cycle.
type Cleaner interface {
	CleanupResources(ctx context.Context, githubUser, service, currentCMName string) error
}

// Sweeper periodically re-lists CodeRuns and runs Cleaner for every distinct
// (github-user, service) pair it observes.
type Sweeper struct {
	Client  client.Client
	Cleaner Cleaner
	Log     logr.Logger
}

// Start registers the sweep on schedule and runs it in the background until
// ctx is cancelled. It returns once the cron scheduler has started; the
// scheduler is stopped by Start's own goroutine when ctx is done.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := s.runOnce(ctx); err != nil {
			s.Log.Error(err, "periodic cleanup sweep failed")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}

func (s *Sweeper) runOnce(ctx context.Context) error {
	var runs v1alpha1.CodeRunList
	if err := s.Client.List(ctx, &runs); err != nil {
		s.Log.Info("sweep: skipping, listing coderuns failed", "error", err.Error())
		return nil
	}

	seen := map[string]bool{}
	for _, cr := range runs.Items {
		githubUser := cr.Spec.GithubApp
		if githubUser == "" {
			githubUser = cr.Spec.GithubUser
		}
		key := githubUser + "/" + cr.Spec.Service
		if seen[key] {
			continue
		}
		seen[key] = true

		// currentCMName is left empty: the sweep runs independently of any
		// single reconcile, so there is no "current run" ConfigMap to
		// protect beyond what the active-Job/Pod reference checks already
		// cover.
		if err := s.Cleaner.CleanupResources(ctx, githubUser, cr.Spec.Service, ""); err != nil {
			s.Log.Error(err, "sweep: cleanup failed", "githubUser", githubUser, "service", cr.Spec.Service)
		}
	}
	return nil
}
