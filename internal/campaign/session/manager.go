// internal/campaign/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"campaign-client/internal/common/errors"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/common/metrics"
	"campaign-client/internal/common/observability"
	"campaign-client/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// HeaderSource supplies handshake headers, typically the bearer token.
type HeaderSource interface {
	AuthHeader(ctx context.Context) (http.Header, error)
}

type timer interface {
	Stop() bool
}

type Options struct {
	Config   *Config
	Headers  HeaderSource
	Observer Observer
	Logger   logger.Logger
	Obs      *observability.Observability
	Dialer   *websocket.Dialer
}

// Manager owns the lifecycle of one generation channel: it connects, sends
// the campaign request as the only outbound frame, dispatches classified
// inbound frames and reconnects after unexpected closures.
type Manager struct {
	id       string
	config   *Config
	dialer   *websocket.Dialer
	headers  HeaderSource
	observer Observer
	logger   logger.Logger
	obs      *observability.Observability

	afterFunc func(d time.Duration, f func()) timer

	mu        sync.Mutex
	state     State
	request   models.CampaignRequest
	payload   []byte
	conn      *websocket.Conn
	closing   bool
	attempts  int
	pending   timer
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool
	openedAt  time.Time
	outcome   string

	done     chan struct{}
	doneOnce sync.Once
}

func NewManager(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	id := uuid.New().String()
	return &Manager{
		id:       id,
		config:   cfg,
		dialer:   dialer,
		headers:  opts.Headers,
		observer: observer,
		logger:   logger.ForComponent(opts.Logger, "session").With(map[string]interface{}{"sessionId": id}),
		obs:      opts.Obs,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		state: Idle,
		done:  make(chan struct{}),
	}, nil
}

func (m *Manager) ID() string { return m.id }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Outcome is "completed", "closed" or "exhausted" once Done is closed.
func (m *Manager) Outcome() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome
}

// Done is closed when the session reaches Closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Request returns the request the session was opened with.
func (m *Manager) Request() models.CampaignRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.request.Clone()
}

// Open starts the session with req. Only an Idle session can be opened; the
// session is closed when ctx is done. The first dial happens before Open
// returns; a failed dial is treated like a dropped channel and reconnected.
func (m *Manager) Open(ctx context.Context, req models.CampaignRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode campaign request: %w", err)
	}

	m.mu.Lock()
	switch m.state {
	case Idle:
	case Closed, Completed:
		m.mu.Unlock()
		return errors.NewSessionClosedError()
	default:
		state := m.state
		m.mu.Unlock()
		return errors.NewSessionActiveError(state.String())
	}
	m.request = req.Clone()
	m.payload = payload
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.openedAt = time.Now()
	from := m.setStateLocked(Connecting)
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	m.observer.OnStateChange(from, Connecting)
	m.logger.Info("session opened", map[string]interface{}{
		"url":     m.config.URL,
		"targets": len(req.TargetAudiences),
	})

	stop := context.AfterFunc(ctx, m.Close)
	m.mu.Lock()
	m.stopWatch = stop
	m.mu.Unlock()

	m.connect()
	return nil
}

// Close deliberately ends the session: a pending reconnect is cancelled and
// the channel is closed. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	m.closing = true
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	conn := m.conn
	m.conn = nil
	from := m.setStateLocked(Closed)
	m.mu.Unlock()

	if conn != nil {
		closeConn(conn, "client closed")
	}
	if from != Closed {
		m.observer.OnStateChange(from, Closed)
	}
	m.finish("closed")
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.closing || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	var header http.Header
	if m.headers != nil {
		h, err := m.headers.AuthHeader(ctx)
		if err != nil {
			m.logger.Error("failed to build handshake headers", map[string]interface{}{"error": err})
			m.handleClosure(nil, err)
			return
		}
		header = h
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.config.HandshakeTimeout)
	conn, resp, err := m.dialer.DialContext(dialCtx, m.config.URL, header)
	cancel()
	if err != nil {
		fields := map[string]interface{}{"error": err}
		if resp != nil {
			fields["status"] = resp.StatusCode
		}
		m.logger.Warn("dial failed", fields)
		m.handleClosure(nil, err)
		return
	}

	m.mu.Lock()
	if m.closing || m.state != Connecting {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	payload := m.payload
	m.mu.Unlock()

	if m.config.ReadLimit > 0 {
		conn.SetReadLimit(m.config.ReadLimit)
	}
	go m.readLoop(conn)

	conn.SetWriteDeadline(time.Now().Add(m.config.HandshakeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		m.logger.Error("failed to send campaign request", map[string]interface{}{"error": err})
		conn.Close()
		return
	}
	conn.SetWriteDeadline(time.Time{})
	m.logger.Debug("campaign request sent", map[string]interface{}{"bytes": len(payload)})
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClosure(conn, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if done := m.handleFrame(conn, data); done {
			return
		}
	}
}

// handleFrame dispatches one frame and reports whether the session finished.
func (m *Manager) handleFrame(conn *websocket.Conn, data []byte) bool {
	frame := Classify(data)
	metrics.SessionFramesReceived.WithLabelValues(frame.Kind()).Inc()

	m.mu.Lock()
	if m.conn != conn || m.state != Connecting && m.state != Streaming {
		m.mu.Unlock()
		return true
	}
	// Only progress frames reset the reconnect budget.
	if _, ok := frame.(ProgressFrame); ok {
		m.attempts = 0
	}
	from := m.state
	if from == Connecting {
		m.setStateLocked(Streaming)
	}
	m.mu.Unlock()

	if from == Connecting {
		m.observer.OnStateChange(Connecting, Streaming)
	}

	switch f := frame.(type) {
	case ErrorFrame:
		m.logger.Warn("server reported an error", map[string]interface{}{"payload": f.Payload})
		m.observer.OnError(errors.NewStreamErrorFrameError(f.Payload))
	case ProgressFrame:
		m.logger.Debug("progress", map[string]interface{}{"message": f.Message})
		m.observer.OnStatus(f.Message)
	case ResultFrame:
		m.complete(conn, f)
		return true
	case UnknownFrame:
		if f.Invalid {
			m.logger.Warn("invalid result frame", map[string]interface{}{"reason": f.Reason})
			m.observer.OnError(errors.NewResponseInvalidError("stream", f.Reason))
		} else {
			m.logger.Debug("ignoring unrecognized frame", map[string]interface{}{"reason": f.Reason})
		}
	}
	return false
}

func (m *Manager) complete(conn *websocket.Conn, f ResultFrame) {
	m.observer.OnResult(f.Images)

	m.mu.Lock()
	if m.state != Streaming {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(Completed)
	m.mu.Unlock()
	m.observer.OnStateChange(Streaming, Completed)
	m.logger.Info("generation completed", map[string]interface{}{"targets": len(f.Images)})

	closeConn(conn, "result received")

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	from := m.setStateLocked(Closed)
	m.outcome = "completed"
	m.mu.Unlock()
	if from != Closed {
		m.observer.OnStateChange(from, Closed)
	}
	m.finish("completed")
}

// handleClosure runs when a channel ends or a dial fails. conn is nil for
// dial failures. Closures of stale channels, after completion or after a
// deliberate close are ignored; anything else schedules a reconnect.
func (m *Manager) handleClosure(conn *websocket.Conn, cause error) {
	m.mu.Lock()
	if conn != nil && m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.closing || !m.state.Live() {
		m.mu.Unlock()
		return
	}

	m.attempts++
	attempt := m.attempts
	if limit := m.config.MaxReconnectAttempts; limit > 0 && attempt > limit {
		from := m.setStateLocked(Closed)
		m.closing = true
		m.mu.Unlock()

		metrics.SessionReconnects.WithLabelValues("exhausted").Inc()
		m.logger.Error("reconnect attempts exhausted", map[string]interface{}{"attempts": limit, "error": cause})
		m.observer.OnStateChange(from, Closed)
		m.observer.OnError(errors.NewReconnectExhaustedError(limit))
		m.finish("exhausted")
		return
	}

	delay := m.config.backoff(attempt)
	from := m.setStateLocked(Connecting)
	m.pending = m.afterFunc(delay, m.reconnect)
	m.mu.Unlock()

	metrics.SessionReconnects.WithLabelValues("scheduled").Inc()
	m.logger.Warn("channel closed unexpectedly, reconnecting", map[string]interface{}{
		"error":   cause,
		"attempt": attempt,
		"delay":   delay.String(),
	})
	if from != Connecting {
		m.observer.OnStateChange(from, Connecting)
	}
	m.observer.OnError(errors.NewConnectionDropError(cause))
}

// reconnect fires from the backoff timer. It re-checks the state so a
// session that completed or was closed meanwhile never dials again.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.closing || m.state != Connecting || m.pending == nil {
		m.mu.Unlock()
		return
	}
	m.pending = nil
	m.mu.Unlock()

	metrics.SessionReconnects.WithLabelValues("fired").Inc()
	m.connect()
}

func (m *Manager) setStateLocked(to State) State {
	from := m.state
	if from == to {
		return from
	}
	m.state = to
	metrics.SessionTransitions.WithLabelValues(from.String(), to.String()).Inc()
	return from
}

func (m *Manager) finish(outcome string) {
	m.doneOnce.Do(func() {
		m.mu.Lock()
		if m.outcome == "" {
			m.outcome = outcome
		}
		opened := !m.openedAt.IsZero()
		duration := time.Since(m.openedAt)
		stop := m.stopWatch
		cancel := m.cancel
		m.mu.Unlock()

		if stop != nil {
			stop()
		}
		if cancel != nil {
			cancel()
		}
		if opened {
			metrics.SessionsActive.Dec()
			m.obs.RecordSession(context.Background(), duration, outcome)
		}
		m.logger.Info("session closed", map[string]interface{}{"outcome": outcome})
		close(m.done)
	})
}

func closeConn(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	conn.Close()
}
