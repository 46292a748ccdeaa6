// Package app wires the session layer together. It is the only place that
// constructs the storage, auth service, refresh pipeline and session manager.
package app

import (
	"fmt"
	"net/http"
	"sync"

	"ferry-booking-client/internal/auth"
	"ferry-booking-client/internal/client"
	"ferry-booking-client/internal/config"
	"ferry-booking-client/internal/session"
	"ferry-booking-client/internal/storage"

	"github.com/sirupsen/logrus"
)

// App holds the components of one client process
type App struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Store   storage.KV
	Tokens  *auth.TokenStore
	Device  *auth.DeviceIdentity
	Auth    *auth.Service
	Client  *client.HTTPClient
	Session *session.Manager

	nativeID      auth.NativeIDSource
	authTransport *http.Transport
	ownsStore     bool
	closeOnce     sync.Once
}

// Option is a functional option for configuring the App
type Option func(*App)

// WithStore uses kv instead of the configured storage driver. The caller
// keeps ownership and Close leaves it open.
func WithStore(kv storage.KV) Option {
	return func(a *App) {
		a.Store = kv
	}
}

// WithNativeIDSource replaces the host identifier lookup of the device identity
func WithNativeIDSource(source auth.NativeIDSource) Option {
	return func(a *App) {
		a.nativeID = source
	}
}

// New builds the component graph from cfg
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	a := &App{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.initializeComponents(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return a, nil
}

func (a *App) initializeComponents() error {
	if a.Store == nil {
		kv, err := storage.New(a.Config.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		a.Store = kv
		a.ownsStore = true
	}

	tokens, err := auth.NewTokenStore(a.Store, a.Logger)
	if err != nil {
		return err
	}
	a.Tokens = tokens

	var deviceOpts []auth.DeviceOption
	if a.nativeID != nil {
		deviceOpts = append(deviceOpts, auth.WithNativeIDSource(a.nativeID))
	}
	device, err := auth.NewDeviceIdentity(a.Store, a.Logger, deviceOpts...)
	if err != nil {
		return err
	}
	a.Device = device

	// auth endpoints bypass the refresh pipeline
	a.authTransport = client.NewBaseTransport()
	authHTTP := &http.Client{
		Timeout:   a.Config.RequestTimeoutDuration(),
		Transport: a.authTransport,
	}
	svc, err := auth.NewService(a.Config.BaseURL(), authHTTP, tokens, device, a.Logger)
	if err != nil {
		return err
	}
	a.Auth = svc

	transport, err := client.NewTransport(client.NewBaseTransport(), tokens, svc, client.TransportConfig{
		SingleFlight:   a.Config.SingleFlightRefresh,
		RefreshTimeout: a.Config.RefreshTimeoutDuration(),
	}, a.Logger)
	if err != nil {
		return err
	}

	httpClient, err := client.NewHTTPClient(a.Config, transport, a.Logger)
	if err != nil {
		return err
	}
	a.Client = httpClient

	manager, err := session.NewManager(svc, tokens, a.Logger)
	if err != nil {
		return err
	}
	a.Session = manager

	a.Logger.WithFields(logrus.Fields{
		"base_url":       a.Config.BaseURL(),
		"storage_driver": a.Config.Storage.Driver,
		"single_flight":  a.Config.SingleFlightRefresh,
	}).Debug("Session components initialized")
	return nil
}

// Close releases idle connections and the storage it opened
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.Client != nil {
			a.Client.Close()
		}
		if a.authTransport != nil {
			a.authTransport.CloseIdleConnections()
		}
		if a.ownsStore && a.Store != nil {
			err = a.Store.Close()
		}
	})
	return err
}
