package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/wheel-filter/internal/config"
	"github.com/char5742/wheel-filter/internal/event"
	"github.com/char5742/wheel-filter/internal/features"
)

var errUnplugged = errors.New("no such device")

type fakeMouse struct {
	events  chan event.Event
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	grabbed bool
	readErr error
}

func newFakeMouse() *fakeMouse {
	return &fakeMouse{events: make(chan event.Event, 16), closed: make(chan struct{}), readErr: os.ErrClosed}
}

func (m *fakeMouse) ReadEvent() (event.Event, error) {
	select {
	case ev := <-m.events:
		return ev, nil
	case <-m.closed:
		m.mu.Lock()
		defer m.mu.Unlock()
		return event.Event{}, m.readErr
	}
}

func (m *fakeMouse) Grab() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grabbed = true
	return nil
}

func (m *fakeMouse) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grabbed = false
	return nil
}

func (m *fakeMouse) Close() error {
	_ = m.Release()
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *fakeMouse) unplug() {
	m.mu.Lock()
	m.readErr = errUnplugged
	m.mu.Unlock()
	m.once.Do(func() { close(m.closed) })
}

type fakeVirtual struct {
	mu     sync.Mutex
	writes [][]event.Event
	closed bool
}

func (v *fakeVirtual) WriteEvents(events []event.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.writes = append(v.writes, append([]event.Event(nil), events...))
	return nil
}

func (v *fakeVirtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *fakeVirtual) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.writes)
}

type harness struct {
	service  *ScrollService
	mice     []*fakeMouse
	virtuals []*fakeVirtual
	mu       sync.Mutex
}

func newHarness(t *testing.T, devices ...features.Device) *harness {
	t.Helper()
	svc, err := NewScrollService(config.DefaultConfig())
	require.NoError(t, err)

	h := &harness{service: svc}
	svc.scanDevices = func() ([]features.Device, error) { return devices, nil }
	svc.openMouse = func(path string) (features.Mouse, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		m := newFakeMouse()
		h.mice = append(h.mice, m)
		return m, nil
	}
	svc.createVirtual = func() (features.VirtualMouse, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		v := &fakeVirtual{}
		h.virtuals = append(h.virtuals, v)
		return v, nil
	}
	return h
}

func (h *harness) lastMouse() *fakeMouse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mice[len(h.mice)-1]
}

func (h *harness) lastVirtual() *fakeVirtual {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.virtuals[len(h.virtuals)-1]
}

func wheelFrame(notches int32) []event.Event {
	tv := syscall.NsecToTimeval(time.Now().UnixNano())
	return []event.Event{
		{Time: tv, Type: event.Rel, Code: event.RelWheel, Value: notches},
		{Time: tv, Type: event.Syn, Code: event.SynReport},
	}
}

var mouseDevice = features.Device{Name: "usb-Test-event-mouse", Path: "/dev/input/event4"}

func TestScrollService_StartForwardsAndStops(t *testing.T) {
	h := newHarness(t, mouseDevice)
	svc := h.service

	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Start(), errAlreadyRunning)

	m := h.lastMouse()
	for _, ev := range wheelFrame(1) {
		m.events <- ev
	}
	v := h.lastVirtual()
	assert.Eventually(t, func() bool { return v.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	assert.True(t, v.closed)
	assert.ErrorIs(t, svc.Stop(), errNotRunning)

	status := svc.Status()
	assert.Equal(t, mouseDevice, status.Device)
	assert.Equal(t, uint64(1), status.Filter.Forwarded)
	assert.Equal(t, uint64(1), status.Hook.WheelFrames)
}

func TestScrollService_NoMouse(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.service.Start())
	assert.False(t, h.service.IsRunning())
}

func TestScrollService_RestartsAfterReplug(t *testing.T) {
	h := newHarness(t, mouseDevice)
	svc := h.service

	require.NoError(t, svc.Start())
	h.lastMouse().unplug()
	assert.Eventually(t, func() bool { return !svc.IsRunning() }, time.Second, 5*time.Millisecond)

	svc.HandleDeviceEvent(features.DeviceEvent{Type: features.DeviceAdded, Device: mouseDevice})
	assert.True(t, svc.IsRunning())
	assert.Len(t, h.mice, 2)

	require.NoError(t, svc.Stop())

	// 明示的に停止した後は再開しない
	svc.HandleDeviceEvent(features.DeviceEvent{Type: features.DeviceAdded, Device: mouseDevice})
	assert.False(t, svc.IsRunning())
}

func TestScrollService_UpdateConfig(t *testing.T) {
	h := newHarness(t, mouseDevice)

	bad := config.DefaultConfig()
	bad.Filter.TimeConstantMS = 0
	assert.Error(t, h.service.UpdateConfig(bad))

	good := config.DefaultConfig()
	good.Filter.TimeConstantMS = 30
	require.NoError(t, h.service.UpdateConfig(good))
	assert.Equal(t, float32(30), h.service.Config().Filter.TimeConstantMS)
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	h := newHarness(t, mouseDevice)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	handler := NewServer(h.service, configPath, 8080).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(t, handler, http.MethodPut, "/api/config", `{"filter":{"time_constant_ms":-5}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, handler, http.MethodPut, "/api/config", `{"filter":{"time_constant_ms":40}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/config", "")
	var got config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float32(40), got.Filter.TimeConstantMS)
	assert.Equal(t, config.DefaultConfig().Filter.MinDeltaSize, got.Filter.MinDeltaSize)

	rec = doRequest(t, handler, http.MethodPost, "/api/config/save", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	saved, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, float32(40), saved.Filter.TimeConstantMS)

	rec = doRequest(t, handler, http.MethodGet, "/api/devices", "")
	assert.JSONEq(t, `[{"name":"usb-Test-event-mouse","path":"/dev/input/event4"}]`, rec.Body.String())

	rec = doRequest(t, handler, http.MethodPost, "/api/service/stop", "")
	assert.JSONEq(t, `{"status":"not_running"}`, rec.Body.String())

	rec = doRequest(t, handler, http.MethodPost, "/api/service/start", "")
	assert.JSONEq(t, `{"status":"started"}`, rec.Body.String())
	rec = doRequest(t, handler, http.MethodGet, "/api/service/status", "")
	assert.JSONEq(t, `{"status":"running"}`, rec.Body.String())

	rec = doRequest(t, handler, http.MethodGet, "/api/stats", "")
	var status ServiceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Running)

	rec = doRequest(t, handler, http.MethodPost, "/api/service/stop", "")
	assert.JSONEq(t, `{"status":"stopped"}`, rec.Body.String())
}
