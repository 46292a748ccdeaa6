package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ferry-booking-client/internal/logging"
	"ferry-booking-client/internal/storage"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/sirupsen/logrus"
)

// NativeIDSource returns a platform identifier for this install, or "" when
// the platform does not expose one.
type NativeIDSource func(ctx context.Context) (string, error)

// HostIDSource reads the host identifier exposed by the operating system
func HostIDSource(ctx context.Context) (string, error) {
	return host.HostIDWithContext(ctx)
}

// DeviceIDProvider hands out the stable per-install device identifier
type DeviceIDProvider interface {
	GetOrCreateDeviceID(ctx context.Context) (string, error)
}

// DeviceIdentity lazily creates and caches the device identifier
type DeviceIdentity struct {
	kv     storage.KV
	native NativeIDSource
	logger *logrus.Entry

	mu       sync.Mutex
	deviceID string
}

// DeviceOption customises a DeviceIdentity
type DeviceOption func(*DeviceIdentity)

// WithNativeIDSource replaces the host identifier lookup
func WithNativeIDSource(source NativeIDSource) DeviceOption {
	return func(d *DeviceIdentity) {
		d.native = source
	}
}

// NewDeviceIdentity creates a provider persisting into kv
func NewDeviceIdentity(kv storage.KV, logger *logrus.Logger, opts ...DeviceOption) (*DeviceIdentity, error) {
	if kv == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	d := &DeviceIdentity{
		kv:     kv,
		native: HostIDSource,
		logger: logging.NewServiceLogger(logger, "device"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// GetOrCreateDeviceID returns the persisted identifier, generating and
// persisting one on first use. Concurrent first calls agree on one value.
func (d *DeviceIdentity) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deviceID != "" {
		return d.deviceID, nil
	}

	values, err := d.kv.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}
	if id := values[KeyDeviceID]; id != "" {
		d.deviceID = id
		return id, nil
	}

	candidate, source := d.candidate(ctx)

	// another process sharing the store may have won the race
	stored, err := d.kv.SetIfAbsent(ctx, KeyDeviceID, candidate)
	if err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"device_id": stored,
		"source":    source,
	}).Info("Device identity created")

	d.deviceID = stored
	return stored, nil
}

func (d *DeviceIdentity) candidate(ctx context.Context) (string, string) {
	if d.native != nil {
		id, err := d.native(ctx)
		if err != nil {
			d.logger.WithError(err).Debug("Native device id unavailable")
		}
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			return id, "native"
		}
	}
	return uuid.NewString(), "random"
}
