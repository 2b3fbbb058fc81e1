package recording

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
)

func TestReadCSV(t *testing.T) {
	in := "C3, C4, marker, EOG\n" +
		"1.5, -2, , 0\n" +
		"2, 3, left, 0.1\n" +
		"3, 4, ,0.2\n" +
		"4, 5, right, 0.3\n"

	rec, err := ReadCSV(strings.NewReader(in), 250, []string{"EOG"})
	require.NoError(t, err)

	assert.Equal(t, []string{"C3", "C4", "EOG"}, rec.Montage.Channels)
	assert.Equal(t, 250.0, rec.Montage.SampleRate)
	assert.Equal(t, []int{2}, rec.Montage.EOGIndexes())
	assert.Equal(t, [][]float64{{1.5, 2, 3, 4}, {-2, 3, 4, 5}, {0, 0.1, 0.2, 0.3}}, rec.Samples)
	assert.Equal(t, []domain.Event{{Sample: 1, Label: "left"}, {Sample: 3, Label: "right"}}, rec.Events)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		eog  []string
		want error
	}{
		{"empty", "", nil, ErrInvalidCSV},
		{"bad number", "C3\nabc\n", nil, ErrInvalidCSV},
		{"ragged row", "C3,C4\n1,2\n3\n", nil, ErrInvalidCSV},
		{"duplicate channel", "C3,C3\n1,2\n", nil, domain.ErrDuplicateChannel},
		{"duplicate marker", "C3,marker,Marker\n1,,\n", nil, ErrInvalidCSV},
		{"unknown eog", "C3\n1\n", []string{"EOG"}, domain.ErrUnknownChannel},
		{"no samples", "C3\n", nil, domain.ErrEmptyBlock},
		{"infinite", "C3\n+Inf\n", nil, domain.ErrNonFiniteSample},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in), 250, tt.eog)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWriteCSV_ReadBack(t *testing.T) {
	rec := &domain.Recording{
		Montage: domain.Montage{Channels: []string{"a", "b"}, SampleRate: 128},
		Samples: [][]float64{{0.1, 1e-9, -3}, {1.0 / 3, 2, 4}},
		Events:  []domain.Event{{Sample: 0, Label: "x"}, {Sample: 2, Label: "y"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rec))
	assert.True(t, strings.HasPrefix(buf.String(), "a,b,marker\n"))

	got, err := ReadCSV(&buf, 128, nil)
	require.NoError(t, err)
	assert.Equal(t, rec.Samples, got.Samples)
	assert.Equal(t, rec.Events, got.Events)
}

func TestWriteCSV_NoEventsOmitsMarker(t *testing.T) {
	rec := &domain.Recording{
		Montage: domain.Montage{Channels: []string{"a"}, SampleRate: 128},
		Samples: [][]float64{{1, 2}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rec))
	assert.Equal(t, "a\n1\n2\n", buf.String())
}

func TestWriteCSV_CollidingEvents(t *testing.T) {
	rec := &domain.Recording{
		Montage: domain.Montage{Channels: []string{"a"}, SampleRate: 128},
		Samples: [][]float64{{1, 2}},
		Events:  []domain.Event{{Sample: 1, Label: "x"}, {Sample: 1, Label: "y"}},
	}
	assert.ErrorIs(t, WriteCSV(&bytes.Buffer{}, rec), ErrInvalidCSV)
}

func TestSaveAndLoadDecoder(t *testing.T) {
	cfg := classify.NeuroConfig{
		Channels: 2, Samples: 40, Classes: 2, Embed: 4, Heads: 2, Depth: 1, FFRatio: 2,
		PoolSize: 10, PoolStride: 10, Kernels: []int{3, 5}, EncoderChannels: 2,
	}
	w, err := classify.RandomNeuroWeights(cfg, 1)
	require.NoError(t, err)
	raw, err := json.Marshal(w)
	require.NoError(t, err)

	montage := domain.Montage{Channels: []string{"C3", "C4"}, SampleRate: 100}
	pc := domain.DefaultPipelineConfig(100)
	pc.Window = domain.WindowConfig{Length: 40, Hop: 10}
	d, err := domain.NewDecoder(uuid.New(), "neuro", domain.KindNeuroTransNet, montage, pc)
	require.NoError(t, err)
	d.State = domain.DecoderStateReady
	d.Classes = []string{"left", "right"}
	d.Model = raw

	path := filepath.Join(t.TempDir(), "decoder.json")
	require.NoError(t, SaveDecoder(path, d))

	loaded, model, err := LoadDecoder(path)
	require.NoError(t, err)
	assert.Equal(t, d.ID, loaded.ID)
	assert.Equal(t, d.Classes, loaded.Classes)
	assert.Equal(t, domain.KindNeuroTransNet, model.Kind())

	p, err := model.Predict([][]float64{make([]float64, 40), make([]float64, 40)})
	require.NoError(t, err)
	assert.Len(t, p, 2)
}

func TestLoadDecoder_ClassMismatch(t *testing.T) {
	cfg := classify.NeuroConfig{
		Channels: 1, Samples: 20, Classes: 3, Embed: 2, Heads: 1, Depth: 0, FFRatio: 1,
		PoolSize: 10, PoolStride: 10, Kernels: []int{1, 3}, EncoderChannels: 1,
	}
	w, err := classify.RandomNeuroWeights(cfg, 2)
	require.NoError(t, err)
	raw, err := json.Marshal(w)
	require.NoError(t, err)

	d := &domain.Decoder{Kind: domain.KindNeuroTransNet, Classes: []string{"a", "b"}, Model: raw}
	path := filepath.Join(t.TempDir(), "decoder.json")
	require.NoError(t, SaveDecoder(path, d))

	_, _, err = LoadDecoder(path)
	assert.ErrorIs(t, err, domain.ErrClassMismatch)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), 250, nil)
	assert.Error(t, err)
}
