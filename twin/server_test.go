// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package twin

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gantry-systems/gantry/lib/clock"
	"github.com/gantry-systems/gantry/stream"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	server := NewServer(DefaultConfig(), nil, nil, fakeClock, nil)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return server, httpServer, fakeClock
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(response.Body)
		t.Fatalf("GET %s: %d: %s", url, response.StatusCode, body)
	}
	if err := json.NewDecoder(response.Body).Decode(v); err != nil {
		t.Fatalf("decoding %s response: %v", url, err)
	}
}

func postJSON(t *testing.T, url string, request, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	response, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { response.Body.Close() })
	if v != nil && response.StatusCode == http.StatusOK {
		if err := json.NewDecoder(response.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return response
}

func dialStream(t *testing.T, httpServer *httptest.Server, unitID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/telemetry/" + unitID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads stream frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, want stream.FrameType) stream.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		frame, ok := stream.Decode(data)
		if !ok {
			t.Fatalf("undecodable frame: %s", data)
		}
		if frame.Type == want {
			return frame
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, httpServer, _ := newTestServer(t)

	var status struct {
		Halted          bool    `json:"halted"`
		DowntimeSeconds float64 `json:"downtime_seconds"`
	}
	getJSON(t, httpServer.URL+"/api/status", &status)
	if status.Halted || status.DowntimeSeconds != 0 {
		t.Fatalf("fresh server status = %+v", status)
	}
}

func TestOrchestrateEndpoint(t *testing.T) {
	_, httpServer, _ := newTestServer(t)

	var solution stream.Solution
	getJSON(t, httpServer.URL+"/orchestrate/ENGINE-001", &solution)
	if solution.EngineID != "ENGINE-001" {
		t.Fatalf("engine = %q", solution.EngineID)
	}
	if solution.FinalAction == "" || len(solution.Steps) == 0 {
		t.Fatalf("incomplete solution: %+v", solution)
	}
}

func TestUnitsEndpoint(t *testing.T) {
	_, httpServer, _ := newTestServer(t)

	var listing struct {
		Units []UnitListing `json:"units"`
	}
	getJSON(t, httpServer.URL+"/units", &listing)
	if len(listing.Units) != 3 {
		t.Fatalf("got %d units, want the 3 seeded ones", len(listing.Units))
	}
}

func TestChatEndpointValidation(t *testing.T) {
	_, httpServer, _ := newTestServer(t)

	response := postJSON(t, httpServer.URL+"/chat", map[string]string{}, nil)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty message returned %d, want 400", response.StatusCode)
	}
}

func TestChatEndpointOverride(t *testing.T) {
	server, httpServer, _ := newTestServer(t)

	var reply ChatResponse
	postJSON(t, httpServer.URL+"/chat", map[string]string{
		"message": "override", "unit_id": "ENGINE-001",
	}, &reply)
	if !reply.OverrideActive {
		t.Fatalf("reply = %+v", reply)
	}
	if !server.State().OverrideArmed() {
		t.Fatal("override not armed on server state")
	}
}

func TestTelemetryStreamAndIncidentFlow(t *testing.T) {
	server, httpServer, fakeClock := newTestServer(t)
	conn := dialStream(t, httpServer, "ENGINE-001")

	// The pump pushes the first live tick immediately on connect.
	frame := readFrame(t, conn, stream.FrameTelemetry)
	if frame.Telemetry.UnitID != "ENGINE-001" || frame.Telemetry.Status != stream.StatusHealthy {
		t.Fatalf("first tick = %+v", frame.Telemetry)
	}

	// Inject a failure: the alert frame reaches the stream and the
	// system halts.
	var broadcast struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	postJSON(t, httpServer.URL+"/api/broadcast-alert", map[string]any{
		"unit_id": "ENGINE-001", "rul": 0, "vibration": 0.41, "cycle": 287,
	}, &broadcast)
	if broadcast.Status != "alert_broadcast" || broadcast.Clients != 1 {
		t.Fatalf("broadcast = %+v", broadcast)
	}

	alert := readFrame(t, conn, stream.FrameAlert)
	if !alert.Alert.Qualifying() || alert.Alert.UnitID != "ENGINE-001" {
		t.Fatalf("alert = %+v", alert.Alert)
	}
	if !server.State().Halted() {
		t.Fatal("broadcast-alert did not halt the system")
	}

	// The background run streams its first step without waiting for
	// the paced clock.
	step := readFrame(t, conn, stream.FrameStep)
	if step.Step.ID != 1 || step.Step.RunID == "" {
		t.Fatalf("step = %+v", step.Step)
	}

	// While halted, waking the pump produces a frozen tick with the
	// downtime counter. The pump is still parked on the live interval
	// from before the halt, alongside the paced run.
	fakeClock.WaitForTimers(2)
	fakeClock.Advance(server.config.LiveInterval)
	frozen := readFrame(t, conn, stream.FrameTelemetry)
	if !frozen.Telemetry.SystemHalted {
		t.Fatalf("tick while halted not frozen: %+v", frozen.Telemetry)
	}

	// Resume: downtime reported, system_resumed broadcast, halt
	// cleared.
	var resumed struct {
		Status          string  `json:"status"`
		DowntimeSeconds float64 `json:"downtime_seconds"`
	}
	postJSON(t, httpServer.URL+"/system-resume", map[string]string{}, &resumed)
	if resumed.Status != "resumed" || resumed.DowntimeSeconds != server.config.LiveInterval.Seconds() {
		t.Fatalf("resume = %+v", resumed)
	}

	frame = readFrame(t, conn, stream.FrameSystemResumed)
	if frame.Resumed.DowntimeSeconds != resumed.DowntimeSeconds {
		t.Fatalf("system_resumed downtime = %v", frame.Resumed.DowntimeSeconds)
	}
	if server.State().Halted() {
		t.Fatal("resume did not clear the halt")
	}
	if !server.State().InGrace() {
		t.Fatal("resume did not open the grace window")
	}
}

func TestBroadcastAlertPlaceholderCycle(t *testing.T) {
	server, httpServer, _ := newTestServer(t)

	// Producers that do not know the cycle send the "?" placeholder.
	var broadcast struct {
		Status string `json:"status"`
	}
	response := postJSON(t, httpServer.URL+"/api/broadcast-alert", map[string]any{
		"unit_id": "ENGINE-001", "rul": 0, "vibration": 0.41, "cycle": "?",
	}, &broadcast)
	if response.StatusCode != http.StatusOK || broadcast.Status != "alert_broadcast" {
		t.Fatalf("placeholder cycle rejected: %d %q", response.StatusCode, broadcast.Status)
	}
	if !server.State().Halted() {
		t.Fatal("alert with placeholder cycle did not halt the system")
	}
	if frozen := server.State().FrozenSnapshot(); frozen == nil || frozen.Cycle != 0 {
		t.Fatalf("frozen tick = %+v, want cycle 0", frozen)
	}
}

func TestBroadcastAlertDedupsUntilResume(t *testing.T) {
	_, httpServer, _ := newTestServer(t)

	payload := map[string]any{"unit_id": "ENGINE-001", "rul": 0, "vibration": 0.41, "cycle": 287}
	var broadcast struct {
		Status string `json:"status"`
	}
	postJSON(t, httpServer.URL+"/api/broadcast-alert", payload, &broadcast)
	if broadcast.Status != "alert_broadcast" {
		t.Fatalf("first alert = %q", broadcast.Status)
	}

	// A unit fires at most one alert per incident.
	postJSON(t, httpServer.URL+"/api/broadcast-alert", payload, &broadcast)
	if broadcast.Status != "alert_already_active" {
		t.Fatalf("repeat alert = %q, want alert_already_active", broadcast.Status)
	}

	// Resume rearms the unit.
	postJSON(t, httpServer.URL+"/system-resume", map[string]string{}, nil)
	postJSON(t, httpServer.URL+"/api/broadcast-alert", payload, &broadcast)
	if broadcast.Status != "alert_broadcast" {
		t.Fatalf("post-resume alert = %q, want alert_broadcast", broadcast.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, httpServer, _ := newTestServer(t)

	response, err := http.Get(httpServer.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(response.Body)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("metrics returned %d", response.StatusCode)
	}
	if !bytes.Contains(body, []byte("gantry_stream_clients")) {
		t.Fatal("metrics exposition missing gantry instruments")
	}
}
