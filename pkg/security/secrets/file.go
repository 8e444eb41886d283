package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider loads secrets from individual files in a directory, the
// layout produced by Kubernetes secret volumes. Files must be mode 0600 or
// 0400.
//
// With watching enabled, writes to the directory drop the cached values and
// invoke the change callback, so rotated keys are picked up without restart.
type FileProvider struct {
	BasePath string

	mu       sync.RWMutex
	cache    map[string]string
	onChange func(name string)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	logger   *slog.Logger
}

// NewFileProvider creates a file secret provider rooted at basePath.
func NewFileProvider(basePath string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", basePath)
	}

	p := &FileProvider{
		BasePath: basePath,
		cache:    make(map[string]string),
		stopCh:   make(chan struct{}),
		logger:   slog.Default().With("component", "secrets.file"),
	}
	if !watch {
		return p, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(basePath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch secrets directory: %w", err)
	}
	p.watcher = watcher
	go p.watchLoop()

	p.logger.Info("watching secrets directory", "path", basePath)
	return p, nil
}

// OnChange registers a callback invoked with the file name after a secret
// file is written, created or removed.
func (p *FileProvider) OnChange(fn func(name string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// GetSecret reads the file named after the secret.
func (p *FileProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.mu.RLock()
	value, ok := p.cache[name]
	p.mu.RUnlock()
	if ok {
		return value, nil
	}

	path, err := p.path(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file not found: %s", name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", name)
	}
	if mode := info.Mode().Perm(); mode != 0600 && mode != 0400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - path is confined to BasePath above
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.cache[name] = value
	p.mu.Unlock()
	return value, nil
}

func (p *FileProvider) path(name string) (string, error) {
	absBase, err := filepath.Abs(p.BasePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve secrets directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(p.BasePath, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid secret name %q: outside the secrets directory", name)
	}
	return absPath, nil
}

// ListSecrets returns the names of the regular files in the directory.
func (p *FileProvider) ListSecrets(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets directory: %w", err)
	}
	var secrets []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			secrets = append(secrets, entry.Name())
		}
	}
	return secrets, nil
}

// Provider returns "file".
func (p *FileProvider) Provider() string {
	return "file"
}

// Supports reports whether a regular file exists for the secret.
func (p *FileProvider) Supports(name string) bool {
	path, err := p.path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Refresh clears the cache so secrets are re-read from disk.
func (p *FileProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]string)
	return nil
}

// Close stops the watcher.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.stopCh)
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			name := filepath.Base(event.Name)
			p.logger.Debug("secret file changed", "file", name, "op", event.Op.String())
			_ = p.Refresh(context.Background())

			p.mu.RLock()
			fn := p.onChange
			p.mu.RUnlock()
			if fn != nil {
				fn(name)
			}

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secrets watcher error", "error", err)

		case <-p.stopCh:
			return
		}
	}
}
