package providerwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"shift_sms_gateway/internal/domain/sms"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Applier activates a provider configuration.
type Applier interface {
	ReloadProvider(ctx context.Context, cfg sms.ProviderConfig) error
}

// Load reads a provider YAML file. ${VAR} references are expanded from the
// environment so secrets can stay out of the file.
func Load(path string) (sms.ProviderConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sms.ProviderConfig{}, fmt.Errorf("failed to read provider file: %w", err)
	}
	var cfg sms.ProviderConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return sms.ProviderConfig{}, fmt.Errorf("failed to parse provider file %s: %w", path, err)
	}
	if cfg.Provider == "" {
		return sms.ProviderConfig{}, fmt.Errorf("provider file %s: provider is not set", path)
	}
	return cfg, nil
}

// Watcher re-applies the provider file whenever it changes, so credentials can
// be rotated or the carrier switched without a restart.
type Watcher struct {
	path       string
	inboundURL string
	applier    Applier
	logger     *logrus.Entry

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// New watches path. inboundURL fills webhook_url when the file leaves it empty.
func New(path, inboundURL string, applier Applier, logger *logrus.Entry) *Watcher {
	return &Watcher{
		path:       filepath.Clean(path),
		inboundURL: inboundURL,
		applier:    applier,
		logger:     logger.WithFields(logrus.Fields{"component": "provider_watch", "path": path}),
	}
}

// Apply loads the file and activates it.
func (w *Watcher) Apply(ctx context.Context) error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = w.inboundURL
	}
	if err := w.applier.ReloadProvider(ctx, cfg); err != nil {
		return err
	}
	w.logger.WithField("provider", cfg.Provider).Info("Provider file applied")
	return nil
}

// Start watches the file's directory; editors often replace files instead of writing them.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watcher: %w", err)
	}
	w.watcher = watcher

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				w.logger.WithField("op", event.Op.String()).Debug("Provider file changed")
				if err := w.Apply(ctx); err != nil {
					w.logger.WithError(err).Error("Failed to apply provider file, keeping current provider")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.WithError(err).Warn("watcher error")
			}
		}
	}()
	return nil
}

func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
