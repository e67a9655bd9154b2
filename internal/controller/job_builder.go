// Copyright Contributors to the CodeRun Operator project

package controller

import (
	"fmt"
	"strconv"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
	"github.com/5dlabs/coderun-operator/internal/config"
	"github.com/5dlabs/coderun-operator/internal/naming"
)

func resourceQuantity(s string) resource.Quantity {
	return resource.MustParse(s)
}

const (
	defaultActiveDeadlineSeconds  = int64(86400)
	defaultTerminationGracePeriod = int64(60)
	defaultTTLAfterFinished       = int32(3600)

	dockerHost = "unix:///var/run/docker/docker.sock"
)

func boolPtr(b bool) *bool    { return &b }
func int32Ptr(i int32) *int32 { return &i }
func int64Ptr(i int64) *int64 { return &i }

// jobBuildInputs bundles everything buildJob needs beyond the CodeRun
// itself: values resolved from controller config and the classification of
// this run, so job_builder.go stays a pure function of its arguments.
type jobBuildInputs struct {
	JobName          string
	ConfigMapName    string
	PVCName          string
	Image            config.ImageRef
	CLIBinding       config.ResolvedSecretBinding
	Linear           config.LinearConfig
	Persona          string
	Healer           bool
	ClientConfigDone bool // client-config.json already rendered into the ConfigMap
}

func effectiveCLIType(cr *v1alpha1.CodeRun) string {
	if cr.Spec.CLIConfig == nil || cr.Spec.CLIConfig.CLIType == "" {
		return string(v1alpha1.CLIClaude)
	}
	return string(cr.Spec.CLIConfig.CLIType)
}

func effectiveModel(cr *v1alpha1.CodeRun) string {
	if cr.Spec.CLIConfig != nil && cr.Spec.CLIConfig.Model != "" {
		return cr.Spec.CLIConfig.Model
	}
	return cr.Spec.Model
}

func isCodexRun(cliType string) bool {
	return strings.EqualFold(cliType, string(v1alpha1.CLICodex))
}

func workflowNameFromLabels(labels map[string]string) string {
	if v, ok := labels["workflow-name"]; ok && v != "" {
		return v
	}
	return "unknown"
}

// buildJob assembles the batch/v1 Job for cr, per spec.md §4.5 "Job spec
// assembly". It does not talk to the API server; reconcileCreateOrUpdate
// owns the GET/CREATE/409 dance.
func buildJob(cr *v1alpha1.CodeRun, in jobBuildInputs) *batchv1.Job {
	cliType := effectiveCLIType(cr)
	model := effectiveModel(cr)
	codex := isCodexRun(cliType)
	containerName := naming.ContainerNameForCLI(cliType, model)

	labels := buildLabels(cr, cliType, model, containerName, in.Persona)
	dockerEnabled := cr.Spec.EnableDocker == nil || *cr.Spec.EnableDocker

	volumes, volumeMounts, initContainers := buildVolumes(cr, in, codex, dockerEnabled)

	env, reqEnvFrom := buildMainContainerEnv(cr, in, cliType, model, containerName, codex, labels, dockerEnabled)

	envFrom := []corev1.EnvFromSource{
		{SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: "cto-secrets"}}},
	}
	envFrom = append(envFrom, reqEnvFrom...)

	mainContainer := corev1.Container{
		Name:            containerName,
		Image:           in.Image.String(),
		ImagePullPolicy: corev1.PullIfNotPresent,
		Command:         []string{"/bin/bash", "/task-files/container.sh"},
		WorkingDir:      "/workspace",
		Env:             env,
		EnvFrom:         envFrom,
		VolumeMounts:    volumeMounts,
		SecurityContext: mainContainerSecurityContext(codex, dockerEnabled),
	}

	containers := []corev1.Container{mainContainer}
	if dockerEnabled {
		containers = append(containers, buildDockerSidecar(cr))
	}
	if cr.Spec.LinearIntegration != nil && cr.Spec.LinearIntegration.Enabled {
		sidecar, sidecarVolume, mainMount := buildLinearSidecar(cr, in.Linear)
		containers = append(containers, sidecar)
		volumes = append(volumes, sidecarVolume)
		containers[0].VolumeMounts = append(containers[0].VolumeMounts, mainMount)
		containers[0].Env = append(containers[0].Env,
			corev1.EnvVar{Name: "STATUS_FILE", Value: "/status/status.json"},
			corev1.EnvVar{Name: "LOG_FILE_PATH", Value: "/status/agent.log"},
		)
	}

	fsUser := int64(1000)
	if codex {
		fsUser = 0
	}
	fsGroupChangePolicy := corev1.FSGroupChangeOnRootMismatch

	podSpec := corev1.PodSpec{
		ServiceAccountName:            cr.Spec.ServiceAccountName,
		ShareProcessNamespace:         boolPtr(true),
		RestartPolicy:                 corev1.RestartPolicyNever,
		TerminationGracePeriodSeconds: int64Ptr(defaultTerminationGracePeriod),
		ActiveDeadlineSeconds:         int64Ptr(defaultActiveDeadlineSeconds),
		InitContainers:                initContainers,
		Containers:                    containers,
		Volumes:                       volumes,
		SecurityContext: &corev1.PodSecurityContext{
			RunAsUser:           int64Ptr(fsUser),
			RunAsGroup:          int64Ptr(fsUser),
			FSGroup:             int64Ptr(fsUser),
			FSGroupChangePolicy: &fsGroupChangePolicy,
		},
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      in.JobName,
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
		Spec: batchv1.JobSpec{
			BackoffLimit: int32Ptr(0),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}

	// TTL on completion only applies when the CodeRun has no external
	// (e.g. workflow-engine) owner of its own: a Workflow-owned CodeRun is
	// cleaned up by its owner's lifecycle, not the Job's.
	if len(cr.OwnerReferences) == 0 {
		job.Spec.TTLSecondsAfterFinished = int32Ptr(defaultTTLAfterFinished)
	}

	return job
}

func mainContainerSecurityContext(codex, dockerEnabled bool) *corev1.SecurityContext {
	sc := &corev1.SecurityContext{}
	if dockerEnabled {
		sc.Capabilities = &corev1.Capabilities{Add: []corev1.Capability{"KILL"}}
	}
	_ = codex // runAsUser is governed by the pod-level security context, not overridden per-container
	return sc
}

func buildMainContainerEnv(cr *v1alpha1.CodeRun, in jobBuildInputs, cliType, model, containerName string, codex bool, labels map[string]string, dockerEnabled bool) ([]corev1.EnvVar, []corev1.EnvFromSource) {
	doc, _ := decodeTaskRequirements(cr.Spec.TaskRequirements)

	var vars []corev1.EnvVar
	var envFrom []corev1.EnvFromSource
	vars = append(vars, githubAppEnv(cr.Spec.GithubApp)...)
	vars = append(vars, cliAPIKeyEnv(in.CLIBinding))
	vars = append(vars, specEnvPassthrough(cr.Spec.Env)...)

	if cr.Spec.TaskRequirements != "" {
		reqVars, reqEnvFrom := taskRequirementsEnv(doc)
		vars = append(vars, reqVars...)
		envFrom = append(envFrom, reqEnvFrom...)
	} else {
		legacy := make([]envFromSecretSpec, 0, len(cr.Spec.EnvFromSecrets))
		for _, e := range cr.Spec.EnvFromSecrets {
			legacy = append(legacy, envFromSecretSpec{Name: e.Name, SecretName: e.SecretName, SecretKey: e.SecretKey})
		}
		vars = append(vars, legacyEnvFromSecretsEnv(legacy)...)
	}

	vars = append(vars, diagnosticEnv(cr.Spec.Env, doc)...)
	vars = append(vars, criticalSystemEnv(cr.Name, workflowNameFromLabels(cr.Labels), cliType, model, containerName, codex)...)

	if dockerEnabled {
		vars = append(vars, corev1.EnvVar{Name: "DOCKER_HOST", Value: "unix:///var/run/docker/docker.sock"})
	}

	return dedupEnvKeepLast(vars), envFrom
}

func buildVolumes(cr *v1alpha1.CodeRun, in jobBuildInputs, codex, dockerEnabled bool) ([]corev1.Volume, []corev1.VolumeMount, []corev1.Container) {
	var volumes []corev1.Volume
	var mounts []corev1.VolumeMount
	var initContainers []corev1.Container

	volumes = append(volumes, corev1.Volume{
		Name: "task-files",
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: in.ConfigMapName}},
		},
	})
	mounts = append(mounts, corev1.VolumeMount{Name: "task-files", MountPath: "/task-files"})

	cliType := effectiveCLIType(cr)
	if strings.EqualFold(cliType, string(v1alpha1.CLIClaude)) {
		mounts = append(mounts, corev1.VolumeMount{
			Name:      "task-files",
			MountPath: "/etc/claude-code/managed-settings.json",
			SubPath:   "settings.json",
		})
	}

	volumes = append(volumes, corev1.Volume{
		Name: "agents-config",
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: "controller-agents"}},
		},
	})
	mounts = append(mounts, corev1.VolumeMount{Name: "agents-config", MountPath: "/etc/agents-config", ReadOnly: true})

	templatesSharedSources := []corev1.VolumeProjection{
		{ConfigMap: &corev1.ConfigMapProjection{LocalObjectReference: corev1.LocalObjectReference{Name: "controller-templates-shared"}}},
		{ConfigMap: &corev1.ConfigMapProjection{LocalObjectReference: corev1.LocalObjectReference{Name: "controller-templates-integration"}}},
	}
	if in.Healer {
		templatesSharedSources = append(templatesSharedSources, corev1.VolumeProjection{
			ConfigMap: &corev1.ConfigMapProjection{LocalObjectReference: corev1.LocalObjectReference{Name: "controller-templates-healer"}},
		})
	}
	volumes = append(volumes, corev1.Volume{
		Name:         "templates-shared",
		VolumeSource: corev1.VolumeSource{Projected: &corev1.ProjectedVolumeSource{Sources: templatesSharedSources}},
	})
	mounts = append(mounts, corev1.VolumeMount{Name: "templates-shared", MountPath: "/app/templates/_shared", ReadOnly: true})

	volumes = append(volumes, corev1.Volume{
		Name: "templates-integration",
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: "controller-templates-integration"}},
		},
	})
	mounts = append(mounts, corev1.VolumeMount{Name: "templates-integration", MountPath: "/app/templates/integration", ReadOnly: true})

	if strings.Contains(strings.ToLower(cr.Spec.GithubApp), "blaze") {
		mode := int32(0755)
		volumes = append(volumes, corev1.Volume{
			Name: "blaze-scripts",
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: "controller-blaze-scripts"},
					DefaultMode:          &mode,
				},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{Name: "blaze-scripts", MountPath: "/opt/blaze-scripts", ReadOnly: true})
	}

	volumes = append(volumes, corev1.Volume{
		Name:         "workspace",
		VolumeSource: corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: in.PVCName}},
	})
	mounts = append(mounts, corev1.VolumeMount{Name: "workspace", MountPath: "/workspace"})

	if dockerEnabled {
		volumes = append(volumes,
			corev1.Volume{Name: "docker-sock-dir", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
			corev1.Volume{Name: "docker-data", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
		)
		mounts = append(mounts,
			corev1.VolumeMount{Name: "docker-sock-dir", MountPath: "/var/run"},
			corev1.VolumeMount{Name: "docker-data", MountPath: "/var/lib/docker"},
		)
	}

	if !codex {
		initContainers = append(initContainers, corev1.Container{
			Name:    "fix-workspace-perms",
			Image:   "busybox:1.36",
			Command: []string{"sh", "-c", "chown -R 1000:1000 /workspace && chmod -R u+rwX /workspace"},
			SecurityContext: &corev1.SecurityContext{
				RunAsUser:  int64Ptr(0),
				RunAsGroup: int64Ptr(0),
			},
			VolumeMounts: []corev1.VolumeMount{{Name: "workspace", MountPath: "/workspace"}},
		})
	}

	return volumes, mounts, initContainers
}

func buildDockerSidecar(cr *v1alpha1.CodeRun) corev1.Container {
	taskID := strconv.Itoa(int(cr.Spec.TaskID))
	watchPath := fmt.Sprintf("/workspace/task-%s/.agent_done", taskID)
	return corev1.Container{
		Name:            "docker-daemon",
		Image:           "docker:dind",
		ImagePullPolicy: corev1.PullIfNotPresent,
		SecurityContext: &corev1.SecurityContext{Privileged: boolPtr(true)},
		Command: []string{"sh", "-c", fmt.Sprintf(
			`dockerd --host=unix:///var/run/docker/docker.sock & DOCKERD_PID=$!
while [ ! -f %q ]; do sleep 2; done
kill $DOCKERD_PID
`, watchPath)},
		Lifecycle: &corev1.Lifecycle{
			PreStop: &corev1.LifecycleHandler{
				Exec: &corev1.ExecAction{Command: []string{"sh", "-c", "pkill dockerd || true"}},
			},
		},
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resourceQuantity("250m"),
				corev1.ResourceMemory: resourceQuantity("256Mi"),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resourceQuantity("2"),
				corev1.ResourceMemory: resourceQuantity("2Gi"),
			},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "docker-sock-dir", MountPath: "/var/run"},
			{Name: "docker-data", MountPath: "/var/lib/docker"},
			{Name: "workspace", MountPath: "/workspace"},
		},
	}
}

// linear whip-crack configuration is constant per spec.md §4.5.
const (
	linearStallThresholdSeconds = "300"
	linearNudgeIntervalSeconds  = "60"
)

func buildLinearSidecar(cr *v1alpha1.CodeRun, cfg config.LinearConfig) (corev1.Container, corev1.Volume, corev1.VolumeMount) {
	li := cr.Spec.LinearIntegration
	image := cfg.SidecarImage
	if image == "" {
		image = "ghcr.io/5dlabs/linear-sidecar:latest"
	}

	sidecar := corev1.Container{
		Name:            "linear-sidecar",
		Image:           image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Env: []corev1.EnvVar{
			{Name: "LINEAR_SERVICE_URL", Value: cfg.ServiceURL},
			{Name: "LINEAR_SESSION_ID", Value: li.SessionID},
			{Name: "LINEAR_ISSUE_ID", Value: li.IssueID},
			{Name: "LINEAR_TEAM_ID", Value: li.TeamID},
			{Name: "STATUS_FILE", Value: "/status/status.json"},
			{Name: "STALL_THRESHOLD_SECONDS", Value: linearStallThresholdSeconds},
			{Name: "NUDGE_INTERVAL_SECONDS", Value: linearNudgeIntervalSeconds},
			{
				Name: "LINEAR_OAUTH_TOKEN",
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: "linear-secrets"},
						Key:                  "LINEAR_OAUTH_TOKEN",
						Optional:             boolPtr(true),
					},
				},
			},
		},
		Ports:        []corev1.ContainerPort{{Name: "http", ContainerPort: 8080, Protocol: corev1.ProtocolTCP}},
		VolumeMounts: []corev1.VolumeMount{{Name: "linear-status", MountPath: "/status"}},
	}

	volume := corev1.Volume{Name: "linear-status", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}}
	mainMount := corev1.VolumeMount{Name: "linear-status", MountPath: "/status"}
	return sidecar, volume, mainMount
}
