package chrome

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChromeScript writes a shell script that ignores its arguments and
// stays alive, standing in for a browser binary.
func fakeChromeScript(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake not available on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-chrome")
	script := "#!/bin/sh\nexec sleep 60\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func testBrowser(opts Options) *Browser {
	b := NewBrowser(opts, nil)
	b.settleDelay = 50 * time.Millisecond
	b.readyAttempts = 3
	b.readyBackoff = 50 * time.Millisecond
	b.closeGrace = 2 * time.Second
	return b
}

// fakeDevTools serves an empty target list on /json and returns the port it
// listens on.
func fakeDevTools(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestBrowserStartAndClose(t *testing.T) {
	b := testBrowser(Options{
		BinaryPath: fakeChromeScript(t),
		RemotePort: fakeDevTools(t),
	})

	require.NoError(t, b.Start())
	assert.True(t, b.Running())
	assert.NotEmpty(t, b.DevURL)

	b.Close()
	assert.False(t, b.Running())
	assert.Empty(t, b.DevURL)
}

func TestBrowserCloseIdempotent(t *testing.T) {
	b := testBrowser(Options{
		BinaryPath: fakeChromeScript(t),
		RemotePort: fakeDevTools(t),
	})
	require.NoError(t, b.Start())

	b.Close()
	b.Close()
	assert.False(t, b.Running())
}

func TestBrowserStartIsIdempotentWhileRunning(t *testing.T) {
	b := testBrowser(Options{
		BinaryPath: fakeChromeScript(t),
		RemotePort: fakeDevTools(t),
	})
	require.NoError(t, b.Start())
	defer b.Close()

	require.NoError(t, b.Start())
}

func TestBrowserLaunchFailed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/false")
	}
	b := testBrowser(Options{BinaryPath: "/bin/false", RemotePort: 1})

	err := b.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.False(t, b.Running())
}

func TestBrowserMissingBinary(t *testing.T) {
	b := testBrowser(Options{BinaryPath: filepath.Join(t.TempDir(), "nope")})

	err := b.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunchFailed)
}

func TestBrowserDevToolsUnavailable(t *testing.T) {
	// Grab a port nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	b := testBrowser(Options{
		BinaryPath: fakeChromeScript(t),
		RemotePort: port,
	})

	err = b.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevToolsUnavailable)
	assert.False(t, b.Running(), "process must be terminated, not orphaned")
}
