package checkin

import (
	"context"
	"sync"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/kv"
	"github.com/azrayildirim/mekandamobil/internal/location"

	"github.com/rs/zerolog"
)

// Device couples the location feed of one device with its controller.
type Device struct {
	UserID   string
	DeviceID string

	ctrl *Controller
	feed *location.Feed
	stop func()

	mu      sync.Mutex
	callCtx context.Context
	lastErr error

	// guarded by Manager.mu
	holders  int
	lastUsed time.Time
}

// Locate pushes fix through the device's location watch. When the fix moves
// far enough to be delivered, the controller handles it before Locate returns.
func (d *Device) Locate(ctx context.Context, fix location.Fix) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callCtx = ctx
	d.lastErr = nil
	if err := d.feed.Push(fix); err != nil {
		return err
	}
	return d.lastErr
}

// Deny records that the device refused location access.
func (d *Device) Deny(ctx context.Context) error {
	d.feed.Deny()
	return d.ctrl.Handle(ctx, LocationDenied{})
}

func (d *Device) Controller() *Controller {
	return d.ctrl
}

func (d *Device) Feed() location.Provider {
	return d.feed
}

func (d *Device) onFix(fix location.Fix) {
	ctx := d.callCtx
	if ctx == nil {
		ctx = context.Background()
	}
	d.lastErr = d.ctrl.Handle(ctx, LocationUpdated{Fix: fix})
}

// Snapshot is the externally visible check-in state of a device.
type Snapshot struct {
	State         State   `json:"state"`
	Pending       *Prompt `json:"pending"`
	ActivePlaceID string  `json:"active_place_id,omitempty"`
	// LastConfirm is epoch millis, zero when never confirmed.
	LastConfirm int64 `json:"last_confirm,omitempty"`
}

func (d *Device) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{State: d.ctrl.State()}
	if p, ok := d.ctrl.Pending(); ok {
		snap.Pending = &p
	}
	active, _, err := d.ctrl.session.ActivePlace(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.ActivePlaceID = active
	last, err := d.ctrl.session.LastConfirm(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if !last.IsZero() {
		snap.LastConfirm = last.UnixMilli()
	}
	return snap, nil
}

// Manager keeps one Device per user and device id. Sockets hold their device
// through Acquire and Release; a device nobody holds ends after DeviceIdle
// without use, taking its rejection set and pending prompt with it.
type Manager struct {
	scanner    *Scanner
	writer     PresenceWriter
	reconciler SessionReconciler
	newKV      func(scope string) kv.Store
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	devices map[string]*Device
	swept   time.Time
}

func NewManager(scanner *Scanner, writer PresenceWriter, reconciler SessionReconciler, newKV func(scope string) kv.Store, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		scanner:    scanner,
		writer:     writer,
		reconciler: reconciler,
		newKV:      newKV,
		cfg:        cfg.withDefaults(),
		log:        log,
		now:        time.Now,
		devices:    map[string]*Device{},
	}
}

// Device returns the live device, creating it on first use. It takes no hold.
func (m *Manager) Device(userID, deviceID string) (*Device, error) {
	return m.device(userID, deviceID, 0)
}

// Acquire is Device plus a hold that lasts until the matching Release.
func (m *Manager) Acquire(userID, deviceID string) (*Device, error) {
	return m.device(userID, deviceID, 1)
}

func (m *Manager) device(userID, deviceID string, hold int) (*Device, error) {
	key := scope(userID, deviceID)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.swept) >= m.cfg.DeviceIdle/2 {
		m.sweep(now)
	}
	if d, ok := m.devices[key]; ok {
		d.holders += hold
		d.lastUsed = now
		return d, nil
	}

	session := NewSession(m.newKV(key))
	ctrl := NewController(userID, session, m.scanner, m.writer, m.reconciler, m.log)
	ctrl.now = m.now
	d := &Device{
		UserID:   userID,
		DeviceID: deviceID,
		ctrl:     ctrl,
		feed:     location.NewFeed(),
		holders:  hold,
		lastUsed: now,
	}
	stop, err := d.feed.Watch(context.Background(), m.cfg.Watch, d.onFix)
	if err != nil {
		return nil, err
	}
	d.stop = stop
	m.devices[key] = d
	m.log.Debug().Str("action", "device_session_started").Str("user_id", userID).Str("device_id", deviceID).Msg("device registered")
	return d, nil
}

// Release drops a hold taken by Acquire. Persisted check-in state always
// stays; the device itself lives on until Sweep finds it idle.
func (m *Manager) Release(userID, deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[scope(userID, deviceID)]
	if !ok {
		return
	}
	if d.holders > 0 {
		d.holders--
	}
	d.lastUsed = m.now()
}

// Sweep ends every device without holders that has gone DeviceIdle without
// use and reports how many ended. Device calls it lazily as well.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep(m.now())
}

func (m *Manager) sweep(now time.Time) int {
	m.swept = now
	ended := 0
	for key, d := range m.devices {
		if d.holders > 0 || now.Sub(d.lastUsed) < m.cfg.DeviceIdle {
			continue
		}
		delete(m.devices, key)
		m.end(d, "idle")
		ended++
	}
	return ended
}

func (m *Manager) end(d *Device, reason string) {
	if d.stop != nil {
		d.stop()
	}
	m.log.Debug().Str("action", "device_session_ended").Str("user_id", d.UserID).Str("device_id", d.DeviceID).
		Str("reason", reason).Msg("device released")
}

// SignOut runs the sign-out path for the device and ends it regardless of
// holders.
func (m *Manager) SignOut(ctx context.Context, userID, deviceID, connID string) error {
	d, err := m.Device(userID, deviceID)
	if err != nil {
		return err
	}
	err = d.ctrl.Handle(ctx, SignedOut{ConnID: connID})

	key := scope(userID, deviceID)
	m.mu.Lock()
	if m.devices[key] == d {
		delete(m.devices, key)
		m.end(d, "signed_out")
	}
	m.mu.Unlock()
	return err
}

func scope(userID, deviceID string) string {
	return userID + ":" + deviceID
}
