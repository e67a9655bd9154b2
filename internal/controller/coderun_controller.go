// Copyright Contributors to the CodeRun Operator project

// Package controller implements the CodeRun reconciler: it turns a CodeRun
// custom resource into a workspace PVC, a per-run ConfigMap of rendered
// templates, and a batch Job running the selected CLI agent.
package controller

import (
	"context"
	"encoding/json"
	"errors"

	"gomodules.xyz/jsonpatch/v2"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	v1alpha1 "github.com/5dlabs/coderun-operator/api/v1alpha1"
	"github.com/5dlabs/coderun-operator/internal/agent"
	"github.com/5dlabs/coderun-operator/internal/config"
	operrors "github.com/5dlabs/coderun-operator/internal/errors"
	"github.com/5dlabs/coderun-operator/internal/naming"
	"github.com/5dlabs/coderun-operator/internal/template"
	"github.com/5dlabs/coderun-operator/internal/toolcatalog"
)

const toolsConfigAnnotation = "agents.platform/tools-config"

// CodeRunReconciler reconciles a CodeRun object.
type CodeRunReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Config *config.Config
}

// +kubebuilder:rbac:groups=coderun.cto.5dlabs.io,resources=coderuns,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=coderun.cto.5dlabs.io,resources=coderuns/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=batch,resources=jobs,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=persistentvolumeclaims,verbs=get;list;watch;create
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch

func (r *CodeRunReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	var cr v1alpha1.CodeRun
	if err := r.Get(ctx, req.NamespacedName, &cr); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if cr.Spec.GithubApp == "" {
		return r.failValidation(ctx, &cr, operrors.NewValidationError("githubApp", "must be set"))
	}
	if _, err := decodeTaskRequirements(cr.Spec.TaskRequirements); err != nil {
		return r.failValidation(ctx, &cr, err)
	}

	if err := r.reconcileCreateOrUpdate(ctx, &cr); err != nil {
		logger.Error(err, "reconcile failed", "coderun", cr.Name)
		if isFatal(err) {
			return r.failValidation(ctx, &cr, err)
		}
		return ctrl.Result{}, err
	}

	return ctrl.Result{}, nil
}

func isFatal(err error) bool {
	var cfgErr *operrors.ConfigError
	var valErr *operrors.ValidationError
	return asConfigError(err, &cfgErr) || asValidationError(err, &valErr)
}

func asConfigError(err error, target **operrors.ConfigError) bool {
	return errors.As(err, target)
}

func asValidationError(err error, target **operrors.ValidationError) bool {
	return errors.As(err, target)
}

func (r *CodeRunReconciler) failValidation(ctx context.Context, cr *v1alpha1.CodeRun, cause error) (ctrl.Result, error) {
	cr.Status.Phase = "Failed"
	cr.Status.Message = cause.Error()
	if err := r.Status().Update(ctx, cr); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// reconcileCreateOrUpdate implements the six-step materialization sequence:
// enrich CLI config, decide the PVC, ensure it exists, build the ConfigMap,
// create-or-get the Job, then patch the ConfigMap's ownership to the Job.
func (r *CodeRunReconciler) reconcileCreateOrUpdate(ctx context.Context, cr *v1alpha1.CodeRun) error {
	logger := log.FromContext(ctx)

	persona, _ := agent.ShortName(cr.Spec.GithubApp)
	r.enrichCLIConfig(cr, persona)

	cliType := effectiveCLIType(cr)
	model := effectiveModel(cr)

	templateSetting := ""
	if cr.Spec.CLIConfig != nil {
		templateSetting = cr.Spec.CLIConfig.Settings["template"]
	}
	healer := agent.IsHealer(string(cr.Spec.RunType), cr.Spec.Service, templateSetting)
	pvcName := agent.PVCName(cr.Spec.Service, cr.Spec.GithubApp, healer)
	workspaceType := workspaceTypeFor(persona, healer)
	logger.Info("resolved workspace", "pvc", pvcName, "workspaceType", workspaceType, "healer", healer)

	if err := r.ensurePVC(ctx, cr, pvcName, persona, workspaceType); err != nil {
		return err
	}

	cmName := naming.ConfigMapName(cr.Namespace, cr.Name, string(cr.UID), cr.Spec.Service, int(cr.Spec.TaskID), int(cr.Spec.ContextVersion))
	jobName := naming.JobName(cr.Name, int(cr.Spec.TaskID), int(cr.Spec.ContextVersion))
	containerName := naming.ContainerNameForCLI(cliType, model)
	labels := buildLabels(cr, cliType, model, containerName, persona)

	if err := r.ensureConfigMap(ctx, cr, cmName, labels, persona); err != nil {
		return err
	}

	binding, err := r.Config.Secrets.ResolveCLIBinding(cliType, r.Config.Agent.ProviderForCLI(cliType))
	if err != nil {
		return err
	}
	img, err := r.Config.Agent.ImageForCLI(cliType)
	if err != nil {
		return err
	}

	in := jobBuildInputs{
		JobName:       jobName,
		ConfigMapName: cmName,
		PVCName:       pvcName,
		Image:         img,
		CLIBinding:    binding,
		Linear:        r.Config.Linear,
		Persona:       persona,
		Healer:        healer,
	}

	job, created, err := r.ensureJob(ctx, cr, in)
	if err != nil {
		return err
	}

	cr.Status.Phase = "Running"
	cr.Status.Message = "job started"
	cr.Status.JobName = job.Name
	if err := r.Status().Update(ctx, cr); err != nil {
		return err
	}

	if created {
		if err := r.patchConfigMapOwnership(ctx, cr, cmName, job); err != nil {
			return err
		}
	}

	if cr.Spec.EnableInputBridge {
		if err := r.ensureInputBridgeService(ctx, cr, job, labels); err != nil {
			return err
		}
	}

	githubUser := cr.Spec.GithubApp
	if githubUser == "" {
		githubUser = cr.Spec.GithubUser
	}
	if err := r.cleanupResources(ctx, githubUser, cr.Spec.Service, cmName); err != nil {
		return err
	}

	return nil
}

// ensureInputBridgeService implements the supplemented optional headless
// Service (SPEC_FULL.md §12.1) with the same idempotent
// GET-then-CREATE-or-409-REPLACE pattern used for the ConfigMap.
func (r *CodeRunReconciler) ensureInputBridgeService(ctx context.Context, cr *v1alpha1.CodeRun, job *batchv1.Job, labels map[string]string) error {
	name := job.Name + "-input"
	svc := buildInputBridgeService(cr.Namespace, name, job, labels)

	if err := r.Create(ctx, svc); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return err
		}
		var existing corev1.Service
		if err := r.Get(ctx, client.ObjectKey{Namespace: cr.Namespace, Name: name}, &existing); err != nil {
			return err
		}
		svc.ResourceVersion = existing.ResourceVersion
		svc.Spec.ClusterIP = existing.Spec.ClusterIP
		if err := r.Update(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// enrichCLIConfig merges the githubApp-keyed default CLI config into
// cr.Spec.CLIConfig, then sets the provider/modelProvider settings pair when
// a provider is configured for the CLI type. User-set fields are never
// overwritten.
func (r *CodeRunReconciler) enrichCLIConfig(cr *v1alpha1.CodeRun, persona string) {
	if cr.Spec.CLIConfig == nil {
		cr.Spec.CLIConfig = &v1alpha1.CLIConfig{CLIType: v1alpha1.CLIClaude}
	}
	cc := cr.Spec.CLIConfig

	if defaults, ok := r.Config.Agent.AgentCLIConfigs[cr.Spec.GithubApp]; ok {
		if cc.Model == "" {
			cc.Model = defaults.Model
		}
		if cc.MaxTokens == nil {
			cc.MaxTokens = defaults.MaxTokens
		}
		if cc.Temperature == nil {
			cc.Temperature = defaults.Temperature
		}
		if cc.ModelRotation == "" {
			cc.ModelRotation = defaults.ModelRotation
		}
		if cc.Settings == nil {
			cc.Settings = map[string]string{}
		}
		for k, v := range defaults.Settings {
			if _, exists := cc.Settings[k]; !exists {
				cc.Settings[k] = v
			}
		}
	}

	cliType := string(cc.CLIType)
	provider := r.Config.Agent.ProviderForCLI(cliType)
	if provider == "" {
		return
	}
	binding, err := r.Config.Secrets.ResolveCLIBinding(cliType, provider)
	if err != nil {
		return
	}
	if cc.Settings == nil {
		cc.Settings = map[string]string{}
	}
	if _, exists := cc.Settings["provider"]; !exists {
		cc.Settings["provider"] = provider
	}
	if _, exists := cc.Settings["modelProvider"]; !exists {
		mp, _ := json.Marshal(map[string]string{"name": provider, "envKey": binding.EnvVar})
		cc.Settings["modelProvider"] = string(mp)
	}
}

func (r *CodeRunReconciler) ensurePVC(ctx context.Context, cr *v1alpha1.CodeRun, name, persona, workspaceType string) error {
	var existing corev1.PersistentVolumeClaim
	err := r.Get(ctx, client.ObjectKey{Namespace: cr.Namespace, Name: name}, &existing)
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return err
	}

	pvc := buildPVC(cr.Namespace, name, cr.Spec.Service, persona, workspaceType, r.Config.Storage)
	if err := r.Create(ctx, pvc); err != nil && !apierrors.IsAlreadyExists(err) {
		return err
	}
	return nil
}

func (r *CodeRunReconciler) ensureConfigMap(ctx context.Context, cr *v1alpha1.CodeRun, name string, labels map[string]string, persona string) error {
	var agentEntry *toolcatalog.AgentEntry
	var providerEnvKey string
	if entry, ok := r.Config.Agents[persona]; ok {
		agentEntry = &toolcatalog.AgentEntry{Tools: entry.Tools, ClientConfig: entry.ClientConfig}
	}
	if cr.Spec.CLIConfig != nil {
		if binding, err := r.Config.Secrets.ResolveCLIBinding(string(cr.Spec.CLIConfig.CLIType), r.Config.Agent.ProviderForCLI(string(cr.Spec.CLIConfig.CLIType))); err == nil {
			providerEnvKey = binding.EnvVar
		}
	}

	overlayJSON := cr.Annotations[toolsConfigAnnotation]

	gen := template.NewGenerator(log.FromContext(ctx))
	data, err := gen.Generate(cr, template.Inputs{AgentEntry: agentEntry, OverlayJSON: overlayJSON, ProviderEnvKey: providerEnvKey})
	if err != nil {
		return operrors.NewConfigError("generateTemplates", err)
	}

	cm := buildConfigMap(cr, name, data, labels)
	if err := r.Create(ctx, cm); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return err
		}
		var existing corev1.ConfigMap
		if err := r.Get(ctx, client.ObjectKey{Namespace: cr.Namespace, Name: name}, &existing); err != nil {
			return err
		}
		cm.ResourceVersion = existing.ResourceVersion
		for _, owner := range existing.OwnerReferences {
			if owner.Kind == "Job" {
				cm.OwnerReferences = append(cm.OwnerReferences, owner)
			}
		}
		if err := r.Update(ctx, cm); err != nil {
			return err
		}
	}
	return nil
}

// ensureJob GETs the deterministically named Job; if absent it creates it
// (re-GETting on a 409 race), returning created=true only when this call is
// the one that brought the Job into existence, which gates the ownership
// patch in step 6.
func (r *CodeRunReconciler) ensureJob(ctx context.Context, cr *v1alpha1.CodeRun, in jobBuildInputs) (*batchv1.Job, bool, error) {
	logger := log.FromContext(ctx)

	var existing batchv1.Job
	err := r.Get(ctx, client.ObjectKey{Namespace: cr.Namespace, Name: in.JobName}, &existing)
	if err == nil {
		var pods corev1.PodList
		_ = r.List(ctx, &pods, client.InNamespace(cr.Namespace), client.MatchingLabels{"job-name": in.JobName})
		logger.Info("job already exists", "job", in.JobName, "pods", len(pods.Items))
		return &existing, false, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, false, err
	}

	job := buildJob(cr, in)
	if err := r.Create(ctx, job); err != nil {
		if apierrors.IsAlreadyExists(err) {
			var created batchv1.Job
			if err := r.Get(ctx, client.ObjectKey{Namespace: cr.Namespace, Name: in.JobName}, &created); err != nil {
				return nil, false, err
			}
			return &created, false, nil
		}
		return nil, false, err
	}
	return job, true, nil
}

// patchConfigMapOwnership appends a non-controller owner reference from the
// Job to the ConfigMap, after the Job has been observed to exist. This
// closes the garbage-collection loop (deleting the Job deletes the
// ConfigMap) without racing a window where the CodeRun alone owns it.
// patchConfigMapOwnership adds the Job as a non-controller owner of the
// ConfigMap via a JSON Patch "add" on /metadata/ownerReferences, rather
// than a GET-mutate-full-object-REPLACE round trip: a REPLACE requires the
// ConfigMap's resourceVersion to still match at write time, which a
// concurrent writer (e.g. a template-content update landing between this
// GET and this write) would invalidate; an "add" JSON Patch on the
// ownerReferences array carries no such precondition.
func (r *CodeRunReconciler) patchConfigMapOwnership(ctx context.Context, cr *v1alpha1.CodeRun, cmName string, job *batchv1.Job) error {
	var cm corev1.ConfigMap
	if err := r.Get(ctx, client.ObjectKey{Namespace: cr.Namespace, Name: cmName}, &cm); err != nil {
		return err
	}
	for _, owner := range cm.OwnerReferences {
		if owner.UID == job.UID {
			return nil
		}
	}

	path := "/metadata/ownerReferences/-"
	if len(cm.OwnerReferences) == 0 {
		path = "/metadata/ownerReferences"
	}
	value := jobOwnerRef(job)
	op := jsonpatch.Operation{Operation: "add", Path: path, Value: value}
	if path == "/metadata/ownerReferences" {
		// No existing owners: the array itself doesn't exist yet, so it
		// must be created with "add", not appended into with "-".
		op.Value = []metav1.OwnerReference{value}
	}

	patchBytes, err := json.Marshal([]jsonpatch.Operation{op})
	if err != nil {
		return err
	}
	return r.Patch(ctx, &cm, client.RawPatch(types.JSONPatchType, patchBytes))
}

// jobOwnerRef builds the non-controller owner reference a ConfigMap gets
// from the Job that mounts it: controller=false (the CodeRun is already the
// controller owner) but blockOwnerDeletion=true, so the ConfigMap is GC'd
// together with the Job.
func jobOwnerRef(job *batchv1.Job) metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion:         "batch/v1",
		Kind:               "Job",
		Name:               job.Name,
		UID:                job.UID,
		Controller:         boolPtr(false),
		BlockOwnerDeletion: boolPtr(true),
	}
}

func (r *CodeRunReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.CodeRun{}).
		Owns(&batchv1.Job{}).
		Owns(&corev1.ConfigMap{}).
		Owns(&corev1.Service{}).
		Complete(r)
}
