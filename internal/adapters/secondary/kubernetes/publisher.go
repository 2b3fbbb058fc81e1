package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"eeg-decoder-service/internal/config"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
)

var configMapGVR = schema.GroupVersionResource{
	Group:    "",
	Version:  "v1",
	Resource: "configmaps",
}

const (
	managedBy   = "eeg-decoder-service"
	payloadKey  = "decoder.json"
	namePrefix  = "eeg-decoder-"
	labelPrefix = "eeg.decoder/"

	// ConfigMaps are capped at 1 MiB including metadata.
	maxPayloadBytes = 1000 * 1024
)

type publisher struct {
	client    dynamic.Interface
	enabled   bool
	defaultNS string
}

var _ ports.DecoderPublisher = (*publisher)(nil)

// NewDecoderPublisher builds a publisher that writes decoders into
// ConfigMaps for edge runtimes to mount.
func NewDecoderPublisher(cfg *config.KubernetesConfig) (ports.DecoderPublisher, error) {
	if !cfg.Enabled {
		return &publisher{enabled: false}, nil
	}

	var restCfg *rest.Config
	var err error

	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else if cfg.KubeConfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	} else {
		home, _ := os.UserHomeDir()
		restCfg, err = clientcmd.BuildConfigFromFlags("", filepath.Join(home, ".kube", "config"))
	}
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	client, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	return NewDecoderPublisherWithClient(client, cfg.DefaultNS), nil
}

func NewDecoderPublisherWithClient(client dynamic.Interface, defaultNS string) ports.DecoderPublisher {
	if defaultNS == "" {
		defaultNS = "eeg-decoders"
	}
	return &publisher{client: client, enabled: client != nil, defaultNS: defaultNS}
}

func (p *publisher) IsAvailable() bool {
	return p != nil && p.enabled
}

// ResourceName is the ConfigMap name used for a decoder.
func ResourceName(id uuid.UUID) string {
	return namePrefix + id.String()
}

func (p *publisher) Publish(ctx context.Context, namespace string, d *domain.Decoder) (*ports.Publication, error) {
	if !p.IsAvailable() {
		return nil, domain.ErrKubernetesNotAvailable
	}
	if namespace == "" {
		namespace = p.defaultNS
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal decoder: %w", err)
	}
	if len(payload) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrPublicationTooLarge, len(payload))
	}

	obj := buildConfigMap(namespace, d, string(payload))
	res := p.client.Resource(configMapGVR).Namespace(namespace)

	existing, err := res.Get(ctx, obj.GetName(), metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		created, err := res.Create(ctx, obj, metav1.CreateOptions{})
		if err != nil {
			return nil, fmt.Errorf("create configmap: %w", err)
		}
		return publication(created), nil
	case err != nil:
		return nil, fmt.Errorf("get configmap: %w", err)
	}

	obj.SetResourceVersion(existing.GetResourceVersion())
	updated, err := res.Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return nil, fmt.Errorf("update configmap: %w", err)
	}
	return publication(updated), nil
}

func (p *publisher) Unpublish(ctx context.Context, namespace string, decoderID uuid.UUID) error {
	if !p.IsAvailable() {
		return domain.ErrKubernetesNotAvailable
	}
	if namespace == "" {
		namespace = p.defaultNS
	}
	err := p.client.Resource(configMapGVR).Namespace(namespace).
		Delete(ctx, ResourceName(decoderID), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete configmap: %w", err)
	}
	return nil
}

func buildConfigMap(namespace string, d *domain.Decoder, payload string) *unstructured.Unstructured {
	labels := map[string]interface{}{
		"app.kubernetes.io/managed-by": managedBy,
		labelPrefix + "id":             d.ID.String(),
		labelPrefix + "kind":           string(d.Kind),
	}
	return &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "ConfigMap",
			"metadata": map[string]interface{}{
				"name":      ResourceName(d.ID),
				"namespace": namespace,
				"labels":    labels,
				"annotations": map[string]interface{}{
					labelPrefix + "name":    d.Name,
					labelPrefix + "project": d.ProjectID.String(),
				},
			},
			"data": map[string]interface{}{
				payloadKey: payload,
			},
		},
	}
}

func publication(obj *unstructured.Unstructured) *ports.Publication {
	return &ports.Publication{
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
		UID:       string(obj.GetUID()),
	}
}
