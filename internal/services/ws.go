package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

// Capabilities announced in agent-ready.
var Capabilities = []string{"print", "status", "heartbeat"}

// ConnState is the supervisor's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// --- Events ---

// Event is one of the closed set of notifications the supervisor delivers:
// PrintRequestEvent, ServerStatusEvent, ConfigUpdateEvent, ConnectedEvent,
// DisconnectedEvent and ReconnectFailedEvent.
type Event interface {
	isEvent()
}

// PrintRequestEvent carries an inbound print job. Err is set when the payload
// could not be decoded.
type PrintRequestEvent struct {
	Request model.PrintRequest
	Err     error
}

type ServerStatusEvent struct {
	Status json.RawMessage
}

type ConfigUpdateEvent struct {
	Config json.RawMessage
}

type ConnectedEvent struct {
	AgentID      string
	RestaurantID string
}

type DisconnectedEvent struct {
	Reason string
}

// ReconnectFailedEvent is emitted once the automatic attempts are exhausted.
// The supervisor then waits for Reconnect or shutdown.
type ReconnectFailedEvent struct {
	Attempts int
}

func (PrintRequestEvent) isEvent()    {}
func (ServerStatusEvent) isEvent()    {}
func (ConfigUpdateEvent) isEvent()    {}
func (ConnectedEvent) isEvent()       {}
func (DisconnectedEvent) isEvent()    {}
func (ReconnectFailedEvent) isEvent() {}

// EventHandler receives supervisor events. It is called from the
// supervisor's goroutines and must not block for long.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event)
}

type EventHandlerFunc func(ctx context.Context, ev Event)

func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// --- Supervisor ---

type SupervisorConfig struct {
	URL               string
	Token             string
	AgentID           string
	RestaurantID      string
	ConnectTimeout    time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	Version           string
	Host              string
}

// Supervisor keeps one authenticated websocket to the server alive and
// carries events in both directions.
type Supervisor struct {
	cfg     SupervisorConfig
	handler EventHandler
	logger  zerolog.Logger
	dialer  *websocket.Dialer
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnState
	info  model.ConnectionState

	writeMu   sync.Mutex
	reconnect chan struct{}

	heartbeatsSent atomic.Int64
}

func NewSupervisor(cfg SupervisorConfig, handler EventHandler, logger zerolog.Logger) *Supervisor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 20 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if handler == nil {
		handler = EventHandlerFunc(func(context.Context, Event) {})
	}
	return &Supervisor{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With().Str("component", "supervisor").Str("agent_id", cfg.AgentID).Logger(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		sleep: sleepContext,
		now:   time.Now,
		info: model.ConnectionState{
			AgentID:      cfg.AgentID,
			RestaurantID: cfg.RestaurantID,
			AuthToken:    cfg.Token,
		},
		reconnect: make(chan struct{}, 1),
	}
}

// BackoffDelay is the wait before reconnection attempt n (1-based).
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Connected() bool {
	return s.State() == StateConnected
}

// Snapshot returns a copy of the connection state.
func (s *Supervisor) Snapshot() model.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// HeartbeatsSent is the number of heartbeats written since start.
func (s *Supervisor) HeartbeatsSent() int64 {
	return s.heartbeatsSent.Load()
}

// Reconnect wakes a supervisor that gave up after its maximum attempts.
func (s *Supervisor) Reconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Run connects and keeps the connection alive until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for ctx.Err() == nil {
		err := s.Connect(ctx)
		if err == nil {
			attempt = 0
			s.setAttempts(0)
			reason := s.serve(ctx)
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn().Str("reason", reason).Msg("disconnected from server")
			s.handler.HandleEvent(ctx, DisconnectedEvent{Reason: reason})
		} else {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Int("attempt", attempt).Msg("websocket connection failed")
		}

		if attempt >= s.cfg.MaxAttempts {
			s.logger.Error().Int("max_attempts", s.cfg.MaxAttempts).Msg("maximum reconnection attempts reached")
			s.handler.HandleEvent(ctx, ReconnectFailedEvent{Attempts: attempt})
			select {
			case <-ctx.Done():
				return nil
			case <-s.reconnect:
				s.logger.Info().Msg("manual reconnection requested")
			}
			attempt = 0
			s.setAttempts(0)
			continue
		}

		attempt++
		s.setAttempts(attempt)
		delay := BackoffDelay(s.cfg.BaseDelay, attempt)
		s.logger.Info().
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("scheduling reconnection")
		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
	return nil
}

// Connect opens and authenticates the channel and announces the agent. On
// failure the state is left disconnected and a *model.ConnectionError is
// returned.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.setState(StateConnecting, nil)
	s.logger.Info().Str("url", s.cfg.URL).Str("restaurant_id", s.cfg.RestaurantID).Msg("connecting to server")

	dctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.Token)
	header.Set("X-Restaurant-Id", s.cfg.RestaurantID)
	header.Set("X-Agent-Id", s.cfg.AgentID)

	conn, resp, err := s.dialer.DialContext(dctx, wsURL(s.cfg.URL), header)
	if err != nil {
		switch {
		case resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden):
			err = fmt.Errorf("%w (HTTP %d)", model.ErrAuthRejected, resp.StatusCode)
		case errors.Is(dctx.Err(), context.DeadlineExceeded) || isTimeout(err):
			err = fmt.Errorf("%w after %s: %v", model.ErrTimeout, s.cfg.ConnectTimeout, err)
		}
		s.setState(StateDisconnected, nil)
		return &model.ConnectionError{Op: "connect", URL: s.cfg.URL, Err: err}
	}

	// agent-ready must be the first frame, so the conn is only published to
	// other writers once it has been sent
	ready := model.AgentReady{
		AgentID:      s.cfg.AgentID,
		RestaurantID: s.cfg.RestaurantID,
		Capabilities: Capabilities,
		Version:      s.cfg.Version,
		Host:         s.cfg.Host,
	}
	if err := s.write(conn, model.MessageTypeAgentReady, ready); err != nil {
		conn.Close()
		s.setState(StateDisconnected, nil)
		return &model.ConnectionError{Op: "announce", URL: s.cfg.URL, Err: err}
	}
	s.setState(StateConnected, conn)

	s.logger.Info().Msg("connected to server")
	s.handler.HandleEvent(ctx, ConnectedEvent{AgentID: s.cfg.AgentID, RestaurantID: s.cfg.RestaurantID})
	return nil
}

// serve runs the heartbeat and read loops of one connection and returns the
// reason it ended.
func (s *Supervisor) serve(ctx context.Context) string {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return "no connection"
	}

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	s.logger.Debug().Dur("interval", s.cfg.HeartbeatInterval).Msg("heartbeat started")

	readDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				readDone <- &handlerPanic{value: r, stack: debug.Stack()}
			}
		}()
		readDone <- s.readLoop(ctx, conn)
	}()

	for {
		select {
		case <-ctx.Done():
			s.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent stopping"),
				s.now().Add(time.Second))
			s.writeMu.Unlock()
			s.drop(conn)
			<-readDone
			return "agent stopping"

		case err := <-readDone:
			s.drop(conn)
			var hp *handlerPanic
			if errors.As(err, &hp) {
				// re-raised on the Run goroutine so the caller's recovery sees it
				s.logger.Error().Str("stack", string(hp.stack)).Msg("event handler panicked")
				panic(hp.value)
			}
			return fmt.Sprintf("read: %v", err)

		case <-heartbeat.C:
			if err := s.sendHeartbeat(); err != nil {
				s.drop(conn)
				<-readDone
				return fmt.Sprintf("heartbeat: %v", err)
			}
		}
	}
}

// drop closes conn and leaves the connected state. The heartbeat ticker is
// stopped by serve returning right after.
func (s *Supervisor) drop(conn *websocket.Conn) {
	conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.state = StateDisconnected
		s.info.Connected = false
	}
	s.mu.Unlock()
}

func (s *Supervisor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg model.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("ignoring malformed frame")
			continue
		}
		s.dispatch(ctx, msg)
	}
}

func (s *Supervisor) dispatch(ctx context.Context, msg model.WSMessage) {
	switch msg.Event {
	case model.MessageTypePrintRequest, model.MessageTypePrintRequestLegacy:
		var req model.PrintRequest
		var ev PrintRequestEvent
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			ev.Err = &model.ValidationError{Field: "payload", Reason: err.Error()}
		}
		ev.Request = req
		s.logger.Info().
			Str("reference", req.SourceReference()).
			Str("table", req.TableLabel()).
			Int("items", len(req.LineItems())).
			Msg("print request received")
		s.handler.HandleEvent(ctx, ev)

	case model.MessageTypeServerStatus, model.MessageTypeServerStatusAlt:
		s.handler.HandleEvent(ctx, ServerStatusEvent{Status: msg.Data})

	case model.MessageTypeConfigUpdate, model.MessageTypeConfigUpdateAlt:
		s.handler.HandleEvent(ctx, ConfigUpdateEvent{Config: msg.Data})

	default:
		s.logger.Debug().Str("event", string(msg.Event)).Msg("unknown message type")
	}
}

func (s *Supervisor) sendHeartbeat() error {
	now := s.now()
	err := s.emit(model.MessageTypeHeartbeat, model.Heartbeat{
		AgentID:   s.cfg.AgentID,
		Timestamp: now.UnixMilli(),
		Status:    "alive",
	})
	if err != nil {
		return err
	}
	s.heartbeatsSent.Add(1)
	s.mu.Lock()
	s.info.LastHeartbeatAt = now
	s.mu.Unlock()
	return nil
}

// SendCompletion reports a job outcome. When disconnected the completion is
// dropped and logged; there is no outbox.
func (s *Supervisor) SendCompletion(c model.Completion) {
	err := s.emit(model.MessageTypePrintCompleted, model.PrintCompleted{
		AgentID:   s.cfg.AgentID,
		TicketID:  c.Reference,
		Success:   c.Success,
		PrintID:   c.JobID,
		Error:     c.Error,
		Timestamp: c.Timestamp.UnixMilli(),
	})
	log := s.logger.With().Str("job_id", c.JobID).Str("reference", c.Reference).Bool("success", c.Success).Logger()
	switch {
	case errors.Is(err, model.ErrNotConnected):
		log.Warn().Msg("completion not delivered: disconnected")
	case err != nil:
		log.Error().Err(err).Msg("completion not delivered")
	default:
		log.Info().Msg("print completion sent")
	}
}

// SendStatus publishes periodic telemetry with the same delivery guarantee
// as SendCompletion.
func (s *Supervisor) SendStatus(snap model.StatusSnapshot) {
	err := s.emit(model.MessageTypeAgentStatus, model.AgentStatus{
		AgentID:   s.cfg.AgentID,
		Status:    snap,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil && !errors.Is(err, model.ErrNotConnected) {
		s.logger.Error().Err(err).Msg("status not delivered")
	}
}

// SendShutdown tells the server the agent is stopping. Best effort.
func (s *Supervisor) SendShutdown(reason string) error {
	return s.emit(model.MessageTypeAgentShutdown, model.AgentShutdown{AgentID: s.cfg.AgentID, Reason: reason})
}

func (s *Supervisor) emit(event model.MessageType, payload any) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if conn == nil || state != StateConnected {
		return model.ErrNotConnected
	}
	return s.write(conn, event, payload)
}

func (s *Supervisor) write(conn *websocket.Conn, event model.MessageType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(s.now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteJSON(model.WSMessage{Event: event, Data: data}); err != nil {
		return &model.ConnectionError{Op: "write " + string(event), URL: s.cfg.URL, Err: err}
	}
	return nil
}

func (s *Supervisor) setState(state ConnState, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.conn = conn
	s.info.Connected = state == StateConnected
}

func (s *Supervisor) setAttempts(n int) {
	s.mu.Lock()
	s.info.ReconnectAttempts = n
	s.mu.Unlock()
}

// wsURL converts http:// to ws:// and https:// to wss://.
func wsURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}

// handlerPanic carries a panic from the read goroutine back to serve.
type handlerPanic struct {
	value any
	stack []byte
}

func (p *handlerPanic) Error() string { return fmt.Sprintf("event handler panic: %v", p.value) }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
