// Copyright Contributors to the CodeRun Operator project

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
	"github.com/5dlabs/coderun-operator/internal/config"
	"github.com/5dlabs/coderun-operator/internal/controller"
	"github.com/5dlabs/coderun-operator/internal/cron"
)

func init() {
	rootCmd.AddCommand(controllerCmd)
	controllerCmd.Flags().StringVar(&controllerConfigPath, "config", "/etc/coderun-operator/controller-config.yaml",
		"Path to the controller configuration file")
	controllerCmd.Flags().StringVar(&metricsBindAddress, "metrics-bind-address", ":8080",
		"The address the metrics endpoint binds to")
	controllerCmd.Flags().StringVar(&healthProbeBindAddress, "health-probe-bind-address", ":8081",
		"The address the health probe endpoint binds to")
	controllerCmd.Flags().BoolVar(&leaderElect, "leader-elect", false,
		"Enable leader election for controller manager HA")
}

var (
	controllerConfigPath   string
	metricsBindAddress     string
	healthProbeBindAddress string
	leaderElect            bool
)

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Start the Kubernetes controller",
	Long: `Start the CodeRun reconciler manager: watches CodeRun custom resources
and materializes them into workspace PVCs, per-run ConfigMaps, and Jobs
running the selected CLI agent.`,
	RunE: runController,
}

func runController(cmd *cobra.Command, args []string) error {
	opts := zap.Options{Development: true}
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	log := ctrl.Log.WithName("controller")

	cfg, err := config.Load(controllerConfigPath)
	if err != nil {
		log.Error(err, "failed to load controller config", "path", controllerConfigPath)
		return err
	}

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	restCfg, err := ctrl.GetConfig()
	if err != nil {
		log.Error(err, "failed to load kubeconfig")
		return err
	}

	mgr, err := ctrl.NewManager(restCfg, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsBindAddress},
		HealthProbeBindAddress: healthProbeBindAddress,
		LeaderElection:         leaderElect,
		LeaderElectionID:       "coderun-operator-leader",
	})
	if err != nil {
		log.Error(err, "unable to start manager")
		return err
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		log.Error(err, "unable to set up health check")
		return err
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		log.Error(err, "unable to set up ready check")
		return err
	}

	reconciler := &controller.CodeRunReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Config: cfg,
	}
	if err := reconciler.SetupWithManager(mgr); err != nil {
		log.Error(err, "unable to create controller", "controller", "CodeRun")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	sweeper := &cron.Sweeper{Client: mgr.GetClient(), Cleaner: reconciler, Log: log.WithName("sweep")}
	if err := sweeper.Start(ctx, cfg.Cleanup.CronSchedule()); err != nil {
		log.Error(err, "unable to start cleanup sweep")
		return err
	}

	log.Info("starting manager", "metricsBindAddress", metricsBindAddress)
	if err := mgr.Start(ctx); err != nil {
		log.Error(err, "problem running manager")
		return fmt.Errorf("running manager: %w", err)
	}

	return nil
}
