package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campaign-client/internal/common/errors"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

const expectedFrame = `{"prompt":"Sell eco cars","targetAudiences":["Young Professionals"],"features":[{"range":"300mi"}],"imageResolutions":[{"width":512,"height":512,"id":0}]}`

func scenarioRequest() models.CampaignRequest {
	return models.CampaignRequest{
		Prompt:          "Sell eco cars",
		TargetAudiences: []string{"Young Professionals"},
		Features:        []models.FeaturePair{{Key: "range", Value: "300mi"}},
		ImageResolution: models.ImageResolution{Width: 512, Height: 512, ID: 0},
	}
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	statuses    []string
	errs        []*errors.StandardError
	results     []models.PerTargetImages
}

func (o *recordingObserver) OnStateChange(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from.String()+"->"+to.String())
}

func (o *recordingObserver) OnStatus(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, message)
}

func (o *recordingObserver) OnError(err *errors.StandardError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) OnResult(images models.PerTargetImages) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, images)
}

func (o *recordingObserver) errorCodes() []errors.ErrorCode {
	o.mu.Lock()
	defer o.mu.Unlock()
	codes := make([]errors.ErrorCode, len(o.errs))
	for i, e := range o.errs {
		codes[i] = e.Code
	}
	return codes
}

type wsServer struct {
	url    string
	conns  int32
	mu     sync.Mutex
	frames []string
	header http.Header
}

func (s *wsServer) connections() int {
	return int(atomic.LoadInt32(&s.conns))
}

func (s *wsServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

// newWSServer runs handle for every accepted connection after reading the
// initial request frame.
func newWSServer(t *testing.T, handle func(n int, conn *websocket.Conn)) *wsServer {
	s := &wsServer{}
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(atomic.AddInt32(&s.conns, 1))

		s.mu.Lock()
		s.header = r.Header.Clone()
		s.mu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.frames = append(s.frames, string(data))
		s.mu.Unlock()

		handle(n, conn)
	}))
	t.Cleanup(server.Close)
	s.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return s
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func sendResult(t *testing.T, conn *websocket.Conn) {
	assert.NoError(t, conn.WriteJSON(map[string]interface{}{
		"images_per_target": map[string]interface{}{
			"A": map[string][]string{"accepted": {"u1"}, "rejected": {}},
			"B": map[string][]string{"accepted": {}, "rejected": {"u2"}},
		},
	}))
}

type scheduledTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *scheduledTimer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

func testConfig(url string) *Config {
	return &Config{
		URL:                  url,
		HandshakeTimeout:     2 * time.Second,
		ReconnectDelay:       50 * time.Millisecond,
		MaxReconnectDelay:    200 * time.Millisecond,
		BackoffMultiplier:    2,
		MaxReconnectAttempts: 10,
		ReadLimit:            1 << 20,
	}
}

func newTestManager(t *testing.T, cfg *Config, obs Observer) (*Manager, *scheduledTimer) {
	m, err := NewManager(Options{Config: cfg, Observer: obs, Logger: logger.NewNoOpLogger()})
	require.NoError(t, err)

	sched := &scheduledTimer{}
	m.afterFunc = func(d time.Duration, f func()) timer {
		sched.mu.Lock()
		sched.delays = append(sched.delays, d)
		sched.mu.Unlock()
		return time.AfterFunc(d, f)
	}
	t.Cleanup(m.Close)
	return m, sched
}

func waitDone(t *testing.T, m *Manager) {
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish, state %s", m.State())
	}
}

// ==========================
// Lifecycle
// ==========================

func TestManager_ResultFrameCompletesSession(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"response": "Generating images"})
		conn.WriteJSON(map[string]string{"error": "segment B retried"})
		conn.WriteJSON(map[string]string{"unexpected": "shape"})
		sendResult(t, conn)
		drain(conn)
	})

	obs := &recordingObserver{}
	m, sched := newTestManager(t, testConfig(server.url), obs)

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	waitDone(t, m)

	assert.Equal(t, []string{expectedFrame}, server.received())
	assert.Equal(t, Closed, m.State())
	assert.Equal(t, "completed", m.Outcome())
	assert.Equal(t, 0, sched.count())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{
		"idle->connecting",
		"connecting->streaming",
		"streaming->completed",
		"completed->closed",
	}, obs.transitions)
	assert.Equal(t, []string{"Generating images"}, obs.statuses)
	require.Len(t, obs.errs, 1)
	assert.Equal(t, errors.ErrCodeStreamErrorFrame, obs.errs[0].Code)
	require.Len(t, obs.results, 1)
	assert.Equal(t, models.PerTargetImages{
		"A": {Accepted: []string{"u1"}, Rejected: []string{}},
		"B": {Accepted: []string{}, Rejected: []string{"u2"}},
	}, obs.results[0])
}

func TestManager_UnexpectedDropReconnectsOnce(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			conn.WriteJSON(map[string]string{"response": "working"})
			time.Sleep(20 * time.Millisecond)
			conn.UnderlyingConn().Close()
			return
		}
		sendResult(t, conn)
		drain(conn)
	})

	obs := &recordingObserver{}
	m, sched := newTestManager(t, testConfig(server.url), obs)

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	waitDone(t, m)

	assert.Equal(t, 2, server.connections())
	frames := server.received()
	require.Len(t, frames, 2)
	assert.Equal(t, frames[0], frames[1])
	assert.Equal(t, expectedFrame, frames[1])

	sched.mu.Lock()
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, sched.delays)
	sched.mu.Unlock()

	assert.Equal(t, "completed", m.Outcome())
	assert.Contains(t, obs.errorCodes(), errors.ErrCodeConnectionDrop)
}

func TestManager_NoReconnectAfterCompleted(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		sendResult(t, conn)
		conn.UnderlyingConn().Close()
	})

	m, sched := newTestManager(t, testConfig(server.url), &recordingObserver{})

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	waitDone(t, m)
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 1, server.connections())
	assert.Equal(t, 0, sched.count())
	assert.Equal(t, "completed", m.Outcome())
}

func TestManager_OpenGuards(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		drain(conn)
	})

	m, _ := newTestManager(t, testConfig(server.url), nil)
	require.NoError(t, m.Open(context.Background(), scenarioRequest()))

	err := m.Open(context.Background(), scenarioRequest())
	assert.ErrorIs(t, err, errors.ErrSessionActive)

	m.Close()
	waitDone(t, m)
	assert.Equal(t, "closed", m.Outcome())

	err = m.Open(context.Background(), scenarioRequest())
	assert.ErrorIs(t, err, errors.ErrSessionClosed)

	m.Close()
}

func TestManager_ContextCancelCloses(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"response": "still going"})
		drain(conn)
	})

	obs := &recordingObserver{}
	m, sched := newTestManager(t, testConfig(server.url), obs)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Open(ctx, scenarioRequest()))
	require.Eventually(t, func() bool { return m.State() == Streaming }, 2*time.Second, 5*time.Millisecond)

	cancel()
	waitDone(t, m)

	assert.Equal(t, Closed, m.State())
	assert.Equal(t, "closed", m.Outcome())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, sched.count())
	assert.Equal(t, 1, server.connections())
}

func TestManager_ReconnectExhausted(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close()

	cfg := testConfig(url)
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectAttempts = 2

	obs := &recordingObserver{}
	m, sched := newTestManager(t, cfg, obs)

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	waitDone(t, m)

	assert.Equal(t, "exhausted", m.Outcome())
	sched.mu.Lock()
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sched.delays)
	sched.mu.Unlock()

	codes := obs.errorCodes()
	require.NotEmpty(t, codes)
	assert.Equal(t, errors.ErrCodeReconnectExhausted, codes[len(codes)-1])
}

func TestManager_ErrorThenDropExhausts(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"error": "model unavailable"})
		conn.UnderlyingConn().Close()
	})

	cfg := testConfig(server.url)
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 40 * time.Millisecond
	cfg.MaxReconnectAttempts = 2

	obs := &recordingObserver{}
	m, sched := newTestManager(t, cfg, obs)

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	waitDone(t, m)

	assert.Equal(t, "exhausted", m.Outcome())
	assert.Equal(t, 3, server.connections())
	sched.mu.Lock()
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sched.delays)
	sched.mu.Unlock()

	codes := obs.errorCodes()
	require.NotEmpty(t, codes)
	assert.Contains(t, codes, errors.ErrCodeStreamErrorFrame)
	assert.Equal(t, errors.ErrCodeReconnectExhausted, codes[len(codes)-1])
}

func TestManager_ProgressResetsAttempts(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		if n == 4 {
			sendResult(t, conn)
			drain(conn)
			return
		}
		conn.WriteJSON(map[string]string{"response": "working"})
		conn.UnderlyingConn().Close()
	})

	cfg := testConfig(server.url)
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 40 * time.Millisecond
	cfg.MaxReconnectAttempts = 1

	m, sched := newTestManager(t, cfg, &recordingObserver{})

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	waitDone(t, m)

	assert.Equal(t, "completed", m.Outcome())
	assert.Equal(t, 3, sched.count())
}

func TestManager_CloseCancelsPendingReconnect(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"response": "working"})
		time.Sleep(20 * time.Millisecond)
		conn.UnderlyingConn().Close()
	})

	m, err := NewManager(Options{Config: testConfig(server.url), Logger: logger.NewNoOpLogger()})
	require.NoError(t, err)

	var fire atomic.Value
	m.afterFunc = func(d time.Duration, f func()) timer {
		fire.Store(f)
		return time.NewTimer(time.Hour)
	}

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	require.Eventually(t, func() bool { return fire.Load() != nil }, 2*time.Second, 5*time.Millisecond)

	m.Close()
	waitDone(t, m)

	fire.Load().(func())()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, server.connections())
	assert.Equal(t, Closed, m.State())
}

func TestManager_HandshakeHeaders(t *testing.T) {
	server := newWSServer(t, func(n int, conn *websocket.Conn) {
		sendResult(t, conn)
		drain(conn)
	})

	m, err := NewManager(Options{
		Config:  testConfig(server.url),
		Headers: staticHeaders{"Authorization": {"Bearer tok-1"}},
		Logger:  logger.NewNoOpLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, m.Open(context.Background(), scenarioRequest()))
	waitDone(t, m)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, "Bearer tok-1", server.header.Get("Authorization"))
}

type staticHeaders http.Header

func (h staticHeaders) AuthHeader(context.Context) (http.Header, error) {
	return http.Header(h).Clone(), nil
}

// ==========================
// Config
// ==========================

func TestConfig_Backoff(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{6, 16 * time.Second},
		{7, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "missing url", mutate: func(c *Config) { c.URL = "" }, errMsg: "websocket url is required"},
		{name: "http url", mutate: func(c *Config) { c.URL = "http://x" }, errMsg: "ws or wss"},
		{name: "zero delay", mutate: func(c *Config) { c.ReconnectDelay = 0 }, errMsg: "reconnect_delay"},
		{name: "cap below delay", mutate: func(c *Config) { c.MaxReconnectDelay = time.Millisecond }, errMsg: "max_reconnect_delay"},
		{name: "shrinking backoff", mutate: func(c *Config) { c.BackoffMultiplier = 0.5 }, errMsg: "backoff_multiplier"},
		{name: "negative attempts", mutate: func(c *Config) { c.MaxReconnectAttempts = -1 }, errMsg: "max_reconnect_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.URL = "ws://localhost/ws"
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
