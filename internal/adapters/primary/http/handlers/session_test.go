package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/adapters/primary/http/dto"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/testutil"
)

// 1500 samples, 100-sample windows, 25-sample hop.
const motorWindows = 57

func (f *fixture) startSession(t *testing.T) (*domain.Decoder, dto.SessionResponse) {
	t.Helper()
	d := f.readyDecoder(t)
	f.sessions.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	f.sessions.On("Update", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)
	f.predictions.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)
	t.Cleanup(func() { f.sessionSvc.StopAll(context.Background()) })

	w := f.do(http.MethodPost, "/sessions", dto.StartSessionRequest{DecoderID: d.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s dto.SessionResponse
	decode(t, w, &s)
	return d, s
}

func pushBody(blocks []domain.Block) dto.PushSamplesRequest {
	req := dto.PushSamplesRequest{}
	for _, b := range blocks {
		req.Blocks = append(req.Blocks, dto.BlockDTO{Seq: b.Seq, Samples: b.Samples})
	}
	return req
}

func motorBlocks() []domain.Block {
	rec := testutil.MotorRecording(3, 5)
	x := make([][]float64, len(rec.Samples))
	for c := range x {
		x[c] = rec.Samples[c][:1500]
	}
	return testutil.Blocks(x, 50)
}

func (f *fixture) waitWindows(t *testing.T, id uuid.UUID, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		w := f.do(http.MethodGet, "/sessions/"+id.String(), nil)
		var s dto.SessionResponse
		_ = json.Unmarshal(w.Body.Bytes(), &s)
		return s.Stats.WindowsProcessed == n
	}, 5*time.Second, 10*time.Millisecond)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestSessionLifecycle(t *testing.T) {
	f := setupRouter(t)
	d, s := f.startSession(t)
	assert.Equal(t, d.ID, s.DecoderID)
	assert.Equal(t, "ACTIVE", s.State)

	w := f.do(http.MethodPost, "/sessions/"+s.ID.String()+"/samples", pushBody(motorBlocks()))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var pushed dto.PushSamplesResponse
	decode(t, w, &pushed)
	assert.Equal(t, 30, pushed.Accepted)

	f.waitWindows(t, s.ID, motorWindows)

	w = f.do(http.MethodGet, "/sessions/"+s.ID.String()+"/predictions?after=50&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page dto.ListPredictionsResponse
	decode(t, w, &page)
	require.Len(t, page.Items, 5)
	assert.Equal(t, uint64(51), page.Items[0].Seq)
	assert.Equal(t, uint64(55), page.NextSeq)
	for _, p := range page.Items {
		if !p.Rejected {
			assert.Contains(t, []string{"left", "right"}, p.Label)
			assert.InDelta(t, 1.0, p.Probabilities[0]+p.Probabilities[1], 1e-9)
		}
	}

	w = f.do(http.MethodDelete, "/sessions/"+s.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stopped dto.SessionResponse
	decode(t, w, &stopped)
	assert.Equal(t, "STOPPED", stopped.State)
	assert.NotNil(t, stopped.StoppedAt)
	assert.Equal(t, int64(motorWindows), stopped.Stats.WindowsProcessed)
	f.predictions.AssertCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestStartSession_Errors(t *testing.T) {
	f := setupRouter(t)
	missing := uuid.New()
	f.decoders.On("GetByID", mock.Anything, f.projectID, missing).Return(nil, domain.ErrDecoderNotFound)
	failed := &domain.Decoder{ID: uuid.New(), ProjectID: f.projectID, State: domain.DecoderStateFailed}
	f.decoders.On("GetByID", mock.Anything, f.projectID, failed.ID).Return(failed, nil)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"missing decoder id", map[string]any{}, http.StatusBadRequest},
		{"unknown decoder", dto.StartSessionRequest{DecoderID: missing}, http.StatusNotFound},
		{"decoder not ready", dto.StartSessionRequest{DecoderID: failed.ID}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/sessions", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestPushSamples_Errors(t *testing.T) {
	f := setupRouter(t)
	_, s := f.startSession(t)
	unknown := uuid.New()
	f.sessions.On("GetByID", mock.Anything, f.projectID, unknown).Return(nil, domain.ErrSessionNotFound)

	blocks := motorBlocks()

	w := f.do(http.MethodPost, "/sessions/"+unknown.String()+"/samples", pushBody(blocks[:1]))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/sessions/"+s.ID.String()+"/samples", dto.PushSamplesRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ragged := pushBody(blocks[:1])
	ragged.Blocks[0].Samples = [][]float64{{1, 2}, {1}, {1, 2}, {1, 2}}
	w = f.do(http.MethodPost, "/sessions/"+s.ID.String()+"/samples", ragged)
	// shape errors surface in the session stats, not on submit
	assert.Equal(t, http.StatusAccepted, w.Code)

	stoppedAt := time.Now()
	f.sessions.On("GetByID", mock.Anything, f.projectID, s.ID).
		Return(&domain.Session{ID: s.ID, ProjectID: f.projectID, State: domain.SessionStateStopped, StoppedAt: &stoppedAt}, nil)
	w = f.do(http.MethodDelete, "/sessions/"+s.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/sessions/"+s.ID.String()+"/samples", pushBody(blocks[1:2]))
	assert.Equal(t, http.StatusConflict, w.Code)
}

// ============================================================================
// Streaming
// ============================================================================

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, sc *bufio.Scanner, stop func(sseEvent) bool) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if cur.name == "" {
				continue
			}
			out = append(out, cur)
			if stop(cur) {
				return out
			}
			cur = sseEvent{}
		}
	}
	return out
}

func TestStreamPredictions(t *testing.T) {
	streamHeartbeat = 20 * time.Millisecond
	defer func() { streamHeartbeat = 15 * time.Second }()

	f := setupRouter(t)
	_, s := f.startSession(t)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/eeg/sessions/"+s.ID.String()+"/stream", nil)
	req.Header.Set("Project-ID", f.projectID.String())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// headers arrive with the first heartbeat, after the subscription exists
	_, err = f.sessionSvc.Push(context.Background(), f.projectID, s.ID, motorBlocks())
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var seqs []uint64
	readEvents(t, sc, func(e sseEvent) bool {
		if e.name == "prediction" {
			var p dto.PredictionResponse
			require.NoError(t, json.Unmarshal([]byte(e.data), &p))
			seqs = append(seqs, p.Seq)
		}
		return len(seqs) == motorWindows
	})
	require.Len(t, seqs, motorWindows)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}

	_, err = f.sessionSvc.Stop(context.Background(), f.projectID, s.ID)
	require.NoError(t, err)

	tail := readEvents(t, sc, func(e sseEvent) bool { return e.name == "end" })
	require.NotEmpty(t, tail)
	assert.Equal(t, "end", tail[len(tail)-1].name)
}

func TestStreamPredictions_UnknownSession(t *testing.T) {
	f := setupRouter(t)
	id := uuid.New()
	f.sessions.On("GetByID", mock.Anything, f.projectID, id).Return(nil, domain.ErrSessionNotFound)

	w := f.do(http.MethodGet, "/sessions/"+id.String()+"/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
