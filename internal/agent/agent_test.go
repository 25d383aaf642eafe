package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riboost-Studio/print-agent/internal/config"
	"github.com/Riboost-Studio/print-agent/internal/model"
	"github.com/Riboost-Studio/print-agent/internal/services"
	"github.com/Riboost-Studio/print-agent/internal/utils"
)

func testConfig(serverURL string) *config.Config {
	return &config.Config{
		ServerURL:         serverURL,
		ConnectionTimeout: time.Second,
		ReconnectAttempts: 2,
		ReconnectDelay:    20 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		StatusInterval:    time.Hour,
		CleanupInterval:   time.Hour,
		Token:             "t0ken",
		RestaurantID:      "resto-1",
		Printer: model.PrinterConfig{
			Type:     model.PrinterEpson,
			Encoding: "PC850",
			Width:    48,
			Mode:     model.PrinterModeText,
		},
		PrintTimeout:    time.Second,
		DryRun:          true,
		DefaultTemplate: "standard",
		QueueCapacity:   10,
		LogLevel:        "debug",
		RetentionDays:   7,
	}
}

func newTestAgent(t *testing.T, cfg *config.Config) (*Agent, *utils.Store) {
	t.Helper()
	store, err := utils.NewStore(t.TempDir())
	require.NoError(t, err)
	a, err := New(cfg, store, "test", zerolog.Nop())
	require.NoError(t, err)
	return a, store
}

func TestResolveAgentID(t *testing.T) {
	store, err := utils.NewStore(t.TempDir())
	require.NoError(t, err)

	id, err := resolveAgentID("configured", store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "configured", id)
	assert.NoFileExists(t, filepath.Join(store.ConfigDir(), "agent.json"))

	generated, err := resolveAgentID("", store, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, generated, 36)
	assert.FileExists(t, filepath.Join(store.ConfigDir(), "agent.json"))

	again, err := resolveAgentID("", store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, generated, again, "identity survives restarts")

	require.NoError(t, os.WriteFile(filepath.Join(store.ConfigDir(), "agent.json"), []byte("{broken"), 0o644))
	replaced, err := resolveAgentID("", store, zerolog.Nop())
	require.NoError(t, err)
	assert.NotEqual(t, generated, replaced)
}

func TestNewSavesRedactedConfig(t *testing.T) {
	_, store := newTestAgent(t, testConfig("ws://127.0.0.1:1/agent"))

	data, err := os.ReadFile(filepath.Join(store.ConfigDir(), "agent_config.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "resto-1")
	assert.NotContains(t, string(data), "t0ken")
}

func TestStatusEndpoints(t *testing.T) {
	a, _ := newTestAgent(t, testConfig("ws://127.0.0.1:1/agent"))
	a.prepare(context.Background())

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "t0ken")

	var status statusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, a.ID(), status.Agent.AgentID)
	assert.Equal(t, model.PrinterDryRun, status.Agent.PrinterStatus)
	assert.False(t, status.Agent.Connected)
	assert.Equal(t, "disconnected", status.State)
	assert.Equal(t, "dry-run", status.Printer)
	assert.Positive(t, status.Agent.DiskUsageBytes)

	resp, err = http.Get(srv.URL + "/templates")
	require.NoError(t, err)
	var listing struct {
		Default   string `json:"default"`
		Templates []struct {
			Name string `json:"name"`
		} `json:"templates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	resp.Body.Close()
	assert.Equal(t, "standard", listing.Default)
	assert.Len(t, listing.Templates, 6)

	resp, err = http.Post(srv.URL+"/reconnect", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHandleEventConfigUpdate(t *testing.T) {
	a, store := newTestAgent(t, testConfig("ws://127.0.0.1:1/agent"))
	a.prepare(context.Background())

	a.HandleEvent(context.Background(), services.ConfigUpdateEvent{Config: json.RawMessage(`{"printerName":"Cocina"}`)})

	var saved map[string]string
	require.NoError(t, store.LoadConfig("server_config", &saved))
	assert.Equal(t, "Cocina", saved["printerName"])
}

func TestGuardTakesEmergencyBackup(t *testing.T) {
	a, store := newTestAgent(t, testConfig("ws://127.0.0.1:1/agent"))

	err := a.guard("maintenance", func() error { panic("disk on fire") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")

	entries, err := os.ReadDir(store.BackupsDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSelectPrinterFallsBackToDryRun(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/agent")
	cfg.DryRun = false
	cfg.Printer.Interface = filepath.Join(t.TempDir(), "no-such-device")
	cfg.Printer.InitTimeout = 200 * time.Millisecond
	a, _ := newTestAgent(t, cfg)

	p := a.selectPrinter(context.Background())
	assert.Equal(t, "dry-run", p.Name())
}

// serverConn is the server side of the agent channel in end-to-end tests.
type serverConn struct {
	conn *websocket.Conn
	msgs chan model.WSMessage
}

func (s *serverConn) expect(t *testing.T, event model.MessageType) model.WSMessage {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg := <-s.msgs:
			if msg.Event == event {
				return msg
			}
		case <-timeout:
			t.Fatalf("agent did not send %s", event)
			return model.WSMessage{}
		}
	}
}

func TestAgentRunEndToEnd(t *testing.T) {
	conns := make(chan *serverConn, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0ken" || r.Header.Get("X-Restaurant-Id") != "resto-1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{conn: c, msgs: make(chan model.WSMessage, 64)}
		conns <- sc
		go func() {
			for {
				var msg model.WSMessage
				if err := c.ReadJSON(&msg); err != nil {
					return
				}
				sc.msgs <- msg
			}
		}()
	}))
	defer srv.Close()

	a, store := newTestAgent(t, testConfig("ws"+strings.TrimPrefix(srv.URL, "http")+"/agent"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	var server *serverConn
	select {
	case server = <-conns:
	case <-time.After(3 * time.Second):
		t.Fatal("agent never connected")
	}

	ready := server.expect(t, model.MessageTypeAgentReady)
	assert.Contains(t, string(ready.Data), a.ID())

	require.NoError(t, server.conn.WriteJSON(map[string]any{
		"event": "imprimir-comanda",
		"data": map[string]any{
			"id_pedido": "P-9",
			"mesa":      "3",
			"productos": []map[string]any{{"nombre": "Tacos", "cantidad": 2, "precio": 4.5}},
		},
	}))

	var done model.PrintCompleted
	require.NoError(t, json.Unmarshal(server.expect(t, model.MessageTypePrintCompleted).Data, &done))
	assert.True(t, done.Success, done.Error)
	assert.Equal(t, "P-9", done.TicketID)
	assert.Equal(t, a.ID(), done.AgentID)
	assert.NotEmpty(t, done.PrintID)

	require.NoError(t, server.conn.WriteJSON(map[string]any{"event": "config_update", "data": map[string]any{"copies": 2}}))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(store.ConfigDir(), "server_config.json"))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	shutdown := server.expect(t, model.MessageTypeAgentShutdown)
	assert.Contains(t, string(shutdown.Data), `"reason":"shutdown"`)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}

	printouts, err := os.ReadDir(store.PrintoutsDir())
	require.NoError(t, err)
	require.Len(t, printouts, 1)
	ticket, err := os.ReadFile(filepath.Join(store.PrintoutsDir(), printouts[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(ticket), "2x Tacos\n  $4.50\n")

	backups, err := os.ReadDir(store.BackupsDir())
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	assert.Equal(t, model.JobStats{Total: 1, Successful: 1}, a.counters.Snapshot())
}
