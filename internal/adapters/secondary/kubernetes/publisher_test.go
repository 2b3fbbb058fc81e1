package kubernetes

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"

	"eeg-decoder-service/internal/config"
	"eeg-decoder-service/internal/core/domain"
)

func newFakeClient() *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{configMapGVR: "ConfigMapList"},
	)
}

func testDecoder() *domain.Decoder {
	return &domain.Decoder{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Name:      "motor-imagery",
		Kind:      domain.KindCSPLDA,
		State:     domain.DecoderStateReady,
		Classes:   []string{"left", "right"},
		Model:     json.RawMessage(`{"kind":"csp-lda"}`),
		Labels:    map[string]string{},
	}
}

// ============================================================================
// Publish
// ============================================================================

func TestPublish_CreatesConfigMap(t *testing.T) {
	client := newFakeClient()
	p := NewDecoderPublisherWithClient(client, "bci")
	d := testDecoder()

	pub, err := p.Publish(context.Background(), "", d)
	require.NoError(t, err)
	assert.Equal(t, "bci", pub.Namespace)
	assert.Equal(t, ResourceName(d.ID), pub.Name)

	obj, err := client.Resource(configMapGVR).Namespace("bci").Get(context.Background(), pub.Name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, managedBy, obj.GetLabels()["app.kubernetes.io/managed-by"])
	assert.Equal(t, "csp-lda", obj.GetLabels()["eeg.decoder/kind"])

	data := obj.Object["data"].(map[string]interface{})
	var got domain.Decoder
	require.NoError(t, json.Unmarshal([]byte(data[payloadKey].(string)), &got))
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Classes, got.Classes)
}

func TestPublish_UpdatesExisting(t *testing.T) {
	client := newFakeClient()
	p := NewDecoderPublisherWithClient(client, "bci")
	d := testDecoder()

	_, err := p.Publish(context.Background(), "bci", d)
	require.NoError(t, err)

	d.Name = "motor-imagery-v2"
	_, err = p.Publish(context.Background(), "bci", d)
	require.NoError(t, err)

	list, err := client.Resource(configMapGVR).Namespace("bci").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "motor-imagery-v2", list.Items[0].GetAnnotations()["eeg.decoder/name"])

	var verbs []string
	for _, a := range client.Actions() {
		verbs = append(verbs, a.GetVerb())
	}
	assert.Equal(t, []string{"get", "create", "get", "update", "list"}, verbs)
}

func TestPublish_TooLarge(t *testing.T) {
	p := NewDecoderPublisherWithClient(newFakeClient(), "bci")
	d := testDecoder()
	d.Model = json.RawMessage(`"` + strings.Repeat("a", maxPayloadBytes) + `"`)

	_, err := p.Publish(context.Background(), "bci", d)
	assert.ErrorIs(t, err, domain.ErrPublicationTooLarge)
}

func TestPublish_GetError(t *testing.T) {
	client := newFakeClient()
	client.PrependReactor("get", "configmaps", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("apiserver down")
	})
	p := NewDecoderPublisherWithClient(client, "bci")

	_, err := p.Publish(context.Background(), "bci", testDecoder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get configmap")
}

// ============================================================================
// Unpublish
// ============================================================================

func TestUnpublish(t *testing.T) {
	client := newFakeClient()
	p := NewDecoderPublisherWithClient(client, "bci")
	d := testDecoder()

	_, err := p.Publish(context.Background(), "bci", d)
	require.NoError(t, err)

	require.NoError(t, p.Unpublish(context.Background(), "bci", d.ID))
	list, err := client.Resource(configMapGVR).Namespace("bci").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)

	// already gone
	assert.NoError(t, p.Unpublish(context.Background(), "bci", d.ID))
}

// ============================================================================
// Availability
// ============================================================================

func TestDisabledPublisher(t *testing.T) {
	p, err := NewDecoderPublisher(&config.KubernetesConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.IsAvailable())

	_, err = p.Publish(context.Background(), "bci", testDecoder())
	assert.ErrorIs(t, err, domain.ErrKubernetesNotAvailable)
	assert.ErrorIs(t, p.Unpublish(context.Background(), "bci", uuid.New()), domain.ErrKubernetesNotAvailable)

	var nilPub *publisher
	assert.False(t, nilPub.IsAvailable())
}
