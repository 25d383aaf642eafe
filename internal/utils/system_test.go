package utils

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppDataPathFor(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}
	home := func() (string, error) { return "/home/ana", nil }
	noHome := func() (string, error) { return "", errors.New("no home") }

	tests := []struct {
		name string
		goos string
		env  map[string]string
		home func() (string, error)
		want string
	}{
		{"windows appdata", "windows", map[string]string{"APPDATA": `C:\Users\ana\AppData\Roaming`}, home, filepath.Join(`C:\Users\ana\AppData\Roaming`, AppName)},
		{"windows local", "windows", map[string]string{"LOCALAPPDATA": `C:\Local`}, home, filepath.Join(`C:\Local`, AppName)},
		{"darwin", "darwin", nil, home, filepath.Join("/home/ana", "Library", "Application Support", AppName)},
		{"linux", "linux", nil, home, filepath.Join("/home/ana", ".config", AppName)},
		{"linux xdg", "linux", map[string]string{"XDG_CONFIG_HOME": "/xdg"}, home, filepath.Join("/xdg", AppName)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, appDataPathFor(tt.goos, env(tt.env), tt.home))
		})
	}

	t.Run("fallback", func(t *testing.T) {
		got := appDataPathFor("linux", env(nil), noHome)
		assert.Equal(t, "data", filepath.Base(got))
	})
}

func TestAppDataPath_Override(t *testing.T) {
	assert.Equal(t, "/srv/agent", AppDataPath("/srv/agent"))
}

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	require.NoError(t, Probe(context.Background(), addr, time.Second))

	require.NoError(t, ln.Close())
	assert.Error(t, Probe(context.Background(), addr, 200*time.Millisecond))
}
