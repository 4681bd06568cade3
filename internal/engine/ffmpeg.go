package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/audiolibrelab/voicenote/internal/config"
)

// FFmpegLoader locates (or downloads) an ffmpeg binary and prepares a workspace for it
type FFmpegLoader struct {
	binaryPath    string
	downloadURL   string
	cacheDir      string
	workspaceDir  string
	maxConcurrent int64
	client        *resty.Client
}

func NewFFmpegLoader(cfg config.EngineConfig) *FFmpegLoader {
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &FFmpegLoader{
		binaryPath:    cfg.BinaryPath,
		downloadURL:   cfg.DownloadURL,
		cacheDir:      cfg.CacheDir,
		workspaceDir:  cfg.WorkspaceDir,
		maxConcurrent: maxConcurrent,
		client:        resty.New().SetHeader("User-Agent", "voicenote"),
	}
}

// Load resolves the binary, checks that it runs and creates a private workspace
func (l *FFmpegLoader) Load(ctx context.Context) (Engine, error) {
	bin, err := l.resolveBinary(ctx)
	if err != nil {
		return nil, err
	}

	version, err := probeVersion(ctx, bin)
	if err != nil {
		return nil, err
	}

	if l.workspaceDir != "" {
		if err := os.MkdirAll(l.workspaceDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace parent: %w", err)
		}
	}
	root, err := os.MkdirTemp(l.workspaceDir, "voicenote-engine-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create engine workspace: %w", err)
	}

	slog.Debug("ffmpeg engine loaded", "binary", bin, "version", version, "workspace", root)
	eng := NewFFmpegEngine(bin, root, afero.NewBasePathFs(afero.NewOsFs(), root), l.maxConcurrent)
	eng.version = version
	return eng, nil
}

// resolveBinary tries the configured path, then $PATH, then the download cache
func (l *FFmpegLoader) resolveBinary(ctx context.Context) (string, error) {
	if l.binaryPath != "" {
		p, err := exec.LookPath(l.binaryPath)
		if err != nil {
			return "", fmt.Errorf("configured ffmpeg binary is not usable: %w", err)
		}
		return p, nil
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	if l.downloadURL == "" {
		return "", errors.New("ffmpeg not found in PATH and no download_url configured")
	}
	return l.download(ctx)
}

// download fetches the binary into the cache directory once
func (l *FFmpegLoader) download(ctx context.Context) (string, error) {
	if l.cacheDir == "" {
		return "", errors.New("cache_dir is required to download ffmpeg")
	}
	if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	target := filepath.Join(l.cacheDir, "ffmpeg")
	if info, err := os.Stat(target); err == nil && info.Mode()&0o111 != 0 {
		slog.Debug("Using cached ffmpeg binary", "path", target)
		return target, nil
	}

	slog.Info("Downloading ffmpeg", "url", l.downloadURL, "target", target)
	tmp := target + ".download"
	resp, err := l.client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(l.downloadURL)
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to download ffmpeg: %w", err)
	}
	if resp.IsError() {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to download ffmpeg: HTTP %d", resp.StatusCode())
	}

	if err := os.Chmod(tmp, 0o755); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to make ffmpeg executable: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to install ffmpeg: %w", err)
	}
	return target, nil
}

func probeVersion(ctx context.Context, bin string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version failed: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// FFmpegEngine runs ffmpeg inside a private workspace directory
type FFmpegEngine struct {
	binary   string
	version  string
	root     string
	fs       afero.Fs
	sem      *semaphore.Weighted
	logLevel string
}

// NewFFmpegEngine creates an engine whose workspace entries live in fs, which
// must expose root as "/".
func NewFFmpegEngine(binary, root string, fs afero.Fs, maxConcurrent int64) *FFmpegEngine {
	logLevel := os.Getenv("FFMPEG_LOGLEVEL")
	if logLevel == "" {
		logLevel = "error"
	}
	return &FFmpegEngine{
		binary:   binary,
		root:     root,
		fs:       fs,
		sem:      semaphore.NewWeighted(maxConcurrent),
		logLevel: logLevel,
	}
}

func entryPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid workspace entry name %q", name)
	}
	return "/" + name, nil
}

func (e *FFmpegEngine) WriteFile(name string, data []byte) error {
	p, err := entryPath(name)
	if err != nil {
		return err
	}
	return afero.WriteFile(e.fs, p, data, 0o600)
}

func (e *FFmpegEngine) ReadFile(name string) ([]byte, error) {
	p, err := entryPath(name)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(e.fs, p)
}

func (e *FFmpegEngine) DeleteFile(name string) error {
	p, err := entryPath(name)
	if err != nil {
		return err
	}
	return e.fs.Remove(p)
}

// Exec runs ffmpeg with the workspace as working directory. Calls are limited by
// the engine's concurrency setting.
func (e *FFmpegEngine) Exec(ctx context.Context, args ...string) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("engine busy: %w", err)
	}
	defer e.sem.Release(1)

	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", e.logLevel, "-y"}, args...)
	cmd := exec.CommandContext(ctx, e.binary, full...)
	cmd.Dir = e.root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("Engine exec", "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`
func (e *FFmpegEngine) Version() string {
	return e.version
}

// Close removes the workspace
func (e *FFmpegEngine) Close() error {
	if e.root == "" {
		return nil
	}
	return os.RemoveAll(e.root)
}
