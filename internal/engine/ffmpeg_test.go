package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/voicenote/internal/config"
)

const fakeFFmpeg = "#!/bin/sh\necho 'ffmpeg version 7.0-test Copyright (c) the FFmpeg developers'\n"

func TestFFmpegEngine_Workspace(t *testing.T) {
	eng := NewFFmpegEngine("ffmpeg", "", afero.NewMemMapFs(), 1)

	require.NoError(t, eng.WriteFile("in-1.webm", []byte("abc")))
	data, err := eng.ReadFile("in-1.webm")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	entries, err := eng.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"in-1.webm"}, entries)

	require.NoError(t, eng.DeleteFile("in-1.webm"))
	entries, err = eng.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = eng.ReadFile("in-1.webm")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFFmpegEngine_RejectsPathsOutsideWorkspace(t *testing.T) {
	eng := NewFFmpegEngine("ffmpeg", "", afero.NewMemMapFs(), 1)

	for _, name := range []string{"", "..", "../etc/passwd", "dir/file.ogg"} {
		assert.Error(t, eng.WriteFile(name, []byte("x")), name)
	}
}

func TestFFmpegLoader_Download(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(fakeFFmpeg))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	l := NewFFmpegLoader(config.EngineConfig{DownloadURL: srv.URL + "/ffmpeg", CacheDir: cacheDir})

	path, err := l.download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "ffmpeg"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111, "binary should be executable")

	// second call is served from the cache
	_, err = l.download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFFmpegLoader_DownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	l := NewFFmpegLoader(config.EngineConfig{DownloadURL: srv.URL, CacheDir: cacheDir})

	_, err := l.download(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFFmpegLoader_LoadConfiguredBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(fakeFFmpeg), 0o755))

	workspaceParent := filepath.Join(dir, "work")
	l := NewFFmpegLoader(config.EngineConfig{BinaryPath: bin, WorkspaceDir: workspaceParent, MaxConcurrent: 2})

	loaded, err := l.Load(context.Background())
	require.NoError(t, err)
	eng := loaded.(*FFmpegEngine)
	assert.Equal(t, "ffmpeg version 7.0-test Copyright (c) the FFmpeg developers", eng.Version())

	require.NoError(t, eng.WriteFile("in-a.wav", []byte("pcm")))
	_, err = os.Stat(filepath.Join(eng.root, "in-a.wav"))
	require.NoError(t, err, "workspace entries live under the workspace root")

	require.NoError(t, eng.Close())
	_, err = os.Stat(eng.root)
	assert.True(t, os.IsNotExist(err))
}

func TestFFmpegLoader_MissingConfiguredBinary(t *testing.T) {
	l := NewFFmpegLoader(config.EngineConfig{BinaryPath: filepath.Join(t.TempDir(), "nope")})

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configured ffmpeg binary is not usable")
}
