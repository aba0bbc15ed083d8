// Package bus publishes pipeline lifecycle events to external provider
// plugins, discovered on disk by name prefix. Providers can observe burns and
// supply encryption passphrases.
package bus

import (
	"fmt"
	"os"

	"github.com/mudler/go-pluggable"

	"github.com/n01d-forge/forge-sdk/types"
)

func NewBus(withEvents ...pluggable.EventType) *Bus {
	if len(withEvents) == 0 {
		withEvents = AllEvents
	}
	return &Bus{
		Manager: pluggable.NewManager(withEvents),
	}
}

type Bus struct {
	*pluggable.Manager
	registered     bool
	logger         *types.ForgeLogger // Fully override the logger
	logLevel       string             // Log level for the logger, defaults to "info" unless FORGE_BUS_DEBUG is set to "true". Only valid if logger is not set.
	logName        string             // Name of the logger, defaults to "bus". Only valid if logger is not set.
	providerPrefix string             // Prefix for provider plugins, defaults to "forge-provider". Used to autoload providers.
	providerPaths  []string           // Paths to search for provider plugins, defaults to system paths and current working directory.
}

func (b *Bus) LoadProviders() {
	b.Autoload(b.providerPrefix, b.providerPaths...).Register()
}

func (b *Bus) Initialize(o ...Options) {
	if b.registered {
		return
	}

	for _, opt := range o {
		opt(b)
	}

	if b.providerPrefix == "" {
		b.providerPrefix = "forge-provider"
	}

	if b.providerPaths == nil {
		wd, _ := os.Getwd()
		b.providerPaths = []string{"/system/providers", "/usr/local/system/providers", wd}
	}

	if b.logger == nil {
		if b.logLevel == "" {
			b.logLevel = "info"
		}

		if os.Getenv("FORGE_BUS_DEBUG") == "true" {
			b.logLevel = "debug"
		}
		if b.logName == "" {
			b.logName = "bus"
		}
		logger := types.NewForgeLogger(b.logName, b.logLevel, false)
		b.logger = &logger
	}

	b.LoadProviders()
	for i := range b.Events {
		e := b.Events[i]
		b.Response(e, func(p *pluggable.Plugin, r *pluggable.EventResponse) {
			b.logger.Logger.Debug().Str("from", p.Name).Str("at", p.Executable).Str("type", string(e)).Msg("Received event from provider")
			if r.Errored() {
				b.logger.Logger.Error().Err(fmt.Errorf("%s", r.Error)).Str("from", p.Name).Str("at", p.Executable).Str("type", string(e)).Msg("Error in provider")
			}
			if r.State != "" {
				b.logger.Logger.Debug().Str("state", r.State).Str("from", p.Name).Str("at", p.Executable).Str("type", string(e)).Msg("Received event from provider")
			}
		})
	}
	b.registered = true
}

// Emit publishes an event with its payload, swallowing publish errors into
// the log so a broken provider never fails a burn.
func (b *Bus) Emit(event pluggable.EventType, payload interface{}) {
	if b == nil {
		return
	}
	if _, err := b.Publish(event, payload); err != nil && b.logger != nil {
		b.logger.Logger.Warn().Err(err).Str("type", string(event)).Msg("Failed to publish event")
	}
}

// DiscoverPassword asks provider plugins for the passphrase of a device.
func (b *Bus) DiscoverPassword(device string) (string, error) {
	if b == nil {
		return "", fmt.Errorf("no event bus configured")
	}

	var password string
	var respErr error
	b.Response(EventDiscoveryPassword, func(_ *pluggable.Plugin, r *pluggable.EventResponse) {
		password = r.Data
		if r.Errored() {
			respErr = fmt.Errorf("failed discovery: %s", r.Error)
		}
	})
	if _, err := b.Publish(EventDiscoveryPassword, map[string]string{"device": device}); err != nil {
		return "", err
	}
	if respErr != nil {
		return "", respErr
	}
	if password == "" {
		return "", fmt.Errorf("received empty password")
	}
	return password, nil
}

type Options func(d *Bus)

// WithLogger sets a custom logger for the bus, overriding the default one.
func WithLogger(logger types.ForgeLogger) Options {
	return func(d *Bus) {
		d.logger = &logger
	}
}

// WithLoggerLevel sets the log level for the default bus logger.
func WithLoggerLevel(level string) Options {
	return func(d *Bus) {
		d.logLevel = level
	}
}

// WithLoggerName sets the name of the default bus logger.
func WithLoggerName(name string) Options {
	return func(d *Bus) {
		d.logName = name
	}
}

// WithProviderPrefix sets the prefix provider plugins are discovered by.
func WithProviderPrefix(prefix string) Options {
	return func(d *Bus) {
		d.providerPrefix = prefix
	}
}

// WithProviderPaths sets the paths searched for provider plugins.
func WithProviderPaths(paths ...string) Options {
	return func(d *Bus) {
		d.providerPaths = paths
	}
}
