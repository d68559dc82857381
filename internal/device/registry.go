package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Registry is a thread-safe in-memory cache over the device Repository.
//
// Telemetry ingestion resolves the owning device for every message, so
// lookups must not hit SQLite each time. The registry loads devices on
// demand, serves copies from the cache, and writes liveness changes
// through to the repository before updating the cached entry.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	repo Repository

	mu    sync.RWMutex
	cache map[string]*Device
}

// NewRegistry creates a registry backed by the given repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:  repo,
		cache: make(map[string]*Device),
	}
}

// LoadAll warms the cache with every known device.
// Called once at startup; later additions are picked up lazily by Get.
func (reg *Registry) LoadAll(ctx context.Context) error {
	devices, err := reg.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		reg.cache[d.ID] = &d
	}

	return nil
}

// Get returns a copy of the device, loading it from the repository on a
// cache miss. Returns ErrDeviceNotFound for unknown devices.
func (reg *Registry) Get(ctx context.Context, id string) (*Device, error) {
	reg.mu.RLock()
	cached, ok := reg.cache[id]
	reg.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := reg.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.cache[d.ID] = d
	reg.mu.Unlock()

	return d.DeepCopy(), nil
}

// MarkOnline sets a device online and records when it was last heard
// from. The repository write happens first so the cache never gets
// ahead of durable state.
func (reg *Registry) MarkOnline(ctx context.Context, id string, seen time.Time) error {
	seen = seen.UTC()
	if err := reg.repo.UpdateStatus(ctx, id, StatusOnline, &seen); err != nil {
		return err
	}

	reg.mu.Lock()
	if d, ok := reg.cache[id]; ok {
		d.Status = StatusOnline
		d.LastSeen = &seen
	}
	reg.mu.Unlock()

	return nil
}

// NoteSeen updates only the cached liveness view, for callers that have
// already persisted the status change inside their own transaction.
func (reg *Registry) NoteSeen(id string, seen time.Time) {
	seen = seen.UTC()

	reg.mu.Lock()
	if d, ok := reg.cache[id]; ok {
		d.Status = StatusOnline
		d.LastSeen = &seen
	}
	reg.mu.Unlock()
}

// MarkOffline sets a device offline, preserving its last_seen timestamp.
func (reg *Registry) MarkOffline(ctx context.Context, id string) error {
	if err := reg.repo.UpdateStatus(ctx, id, StatusOffline, nil); err != nil {
		return err
	}

	reg.mu.Lock()
	if d, ok := reg.cache[id]; ok {
		d.Status = StatusOffline
	}
	reg.mu.Unlock()

	return nil
}

// SetFirmware records the firmware version a device reported in its
// status message. Unknown devices are ignored: firmware is advisory and
// must not fail status processing.
func (reg *Registry) SetFirmware(ctx context.Context, id string, version string) error {
	if err := reg.repo.UpdateFirmware(ctx, id, version); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil
		}
		return err
	}

	reg.mu.Lock()
	if d, ok := reg.cache[id]; ok {
		d.FirmwareVersion = &version
	}
	reg.mu.Unlock()

	return nil
}

// Invalidate drops a device from the cache so the next Get reloads it.
func (reg *Registry) Invalidate(id string) {
	reg.mu.Lock()
	delete(reg.cache, id)
	reg.mu.Unlock()
}

// Count returns the number of cached devices.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.cache)
}
