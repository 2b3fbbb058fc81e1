package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/recording"
	"eeg-decoder-service/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeRecording(t *testing.T, path string, rec *domain.Recording) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, recording.WriteCSV(f, rec))
}

type workspace struct {
	dir      string
	cal      string
	test     string
	pipeline string
	decoder  string
}

func setupWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:      dir,
		cal:      filepath.Join(dir, "cal.csv"),
		test:     filepath.Join(dir, "test.csv"),
		pipeline: filepath.Join(dir, "pipeline.json"),
		decoder:  filepath.Join(dir, "decoder.json"),
	}
	writeRecording(t, ws.cal, testutil.MotorRecording(1, 40))
	writeRecording(t, ws.test, testutil.MotorRecording(2, 20))
	cfg, err := json.Marshal(testutil.MotorPipeline())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws.pipeline, cfg, 0o644))
	return ws
}

func (ws workspace) train(t *testing.T) trainSummary {
	t.Helper()
	out, err := run(t, "train", "-r", ws.cal, "--rate", "100", "--pipeline", ws.pipeline, "--name", "motor", "-o", ws.decoder)
	require.NoError(t, err)
	var s trainSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s), out)
	return s
}

func TestTrainEvaluateInspect(t *testing.T) {
	ws := setupWorkspace(t)

	s := ws.train(t)
	assert.Equal(t, "motor", s.Name)
	assert.Equal(t, domain.KindCSPLDA, s.Kind)
	assert.Equal(t, []string{"left", "right"}, s.Classes)
	require.NotNil(t, s.Report)
	assert.Equal(t, 40, s.Report.Trials)
	assert.FileExists(t, ws.decoder)

	out, err := run(t, "evaluate", "-d", ws.decoder, "-r", ws.test)
	require.NoError(t, err)
	var report domain.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, 20, report.Trials)
	assert.GreaterOrEqual(t, report.Accuracy, 0.8)

	out, err = run(t, "inspect", ws.decoder)
	require.NoError(t, err)
	var info decoderInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info), out)
	assert.Equal(t, s.ID, info.ID)
	assert.Equal(t, domain.DecoderStateReady, info.State)
	assert.Equal(t, testutil.MotorMontage().Channels, info.Montage.Channels)
}

func TestReplay(t *testing.T) {
	ws := setupWorkspace(t)
	ws.train(t)

	out, err := run(t, "replay", "-d", ws.decoder, "-r", ws.test, "-b", "50")
	require.NoError(t, err)

	var seqs []uint64
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var p domain.Prediction
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		if !p.Rejected {
			assert.Contains(t, []string{"left", "right"}, p.Label)
		}
		seqs = append(seqs, p.Seq)
	}
	// 6300 samples, 100-sample windows, 25-sample hop
	require.Len(t, seqs, 249)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestCommandErrors(t *testing.T) {
	ws := setupWorkspace(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown kind", []string{"train", "-r", ws.cal, "--rate", "100", "-k", "svm", "-o", ws.decoder}},
		{"neuro kind not trainable", []string{"train", "-r", ws.cal, "--rate", "100", "-k", "neurotransnet", "-o", ws.decoder}},
		{"missing rate", []string{"train", "-r", ws.cal}},
		{"missing recording file", []string{"train", "-r", filepath.Join(ws.dir, "nope.csv"), "--rate", "100"}},
		{"missing decoder", []string{"evaluate", "-d", filepath.Join(ws.dir, "nope.json"), "-r", ws.test}},
		{"inspect without file", []string{"inspect"}},
		{"zero block size", []string{"replay", "-d", ws.decoder, "-r", ws.test, "-b", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
	assert.NoFileExists(t, ws.decoder)
}
