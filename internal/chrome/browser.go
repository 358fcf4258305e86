package chrome

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Browser supervises the external Chrome process: it spawns it with the
// computed argument vector, waits for the debugging endpoint, and terminates
// it on Close. Exactly one Remote owns one Browser.
type Browser struct {
	opts Options
	log  logrus.FieldLogger

	// readiness tunables; defaults set in NewBrowser, overridden in tests.
	settleDelay   time.Duration
	readyAttempts int
	readyBackoff  time.Duration
	closeGrace    time.Duration

	mu     sync.Mutex
	cmd    *exec.Cmd
	stderr bytes.Buffer
	waitc  chan error

	// DevURL is the debugging endpoint, set once Start succeeds.
	DevURL string
}

// NewBrowser prepares a supervisor for the given options. The process is not
// spawned until Start.
func NewBrowser(opts Options, log logrus.FieldLogger) *Browser {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Browser{
		opts:          opts,
		log:           log.WithField("component", "chrome.browser"),
		settleDelay:   5 * time.Second,
		readyAttempts: 15,
		readyBackoff:  2 * time.Second,
		closeGrace:    10 * time.Second,
	}
}

// Start spawns Chrome and blocks until the debugging endpoint answers GET
// /json. An immediate exit surfaces the process stderr as a LaunchFailed
// error; an endpoint that never answers terminates the process and reports
// DevToolsUnavailable. Start is a no-op if the process is already running.
func (b *Browser) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil {
		return nil
	}

	binary := b.opts.BinaryPath
	if binary == "" {
		found, err := findExecutable()
		if err != nil {
			return err
		}
		binary = found
	}

	port := b.opts.RemotePort
	if port == 0 {
		port = DefaultRemotePort
	}

	cmd := exec.Command(binary, b.opts.Args()...)
	b.stderr.Reset()
	cmd.Stderr = &b.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	b.cmd = cmd
	b.waitc = make(chan error, 1)
	go func() { b.waitc <- cmd.Wait() }()

	// Give the process a moment to either settle or crash.
	select {
	case <-b.waitc:
		stderr := strings.TrimSpace(b.stderr.String())
		b.cmd = nil
		b.waitc = nil
		return fmt.Errorf("%w: process exited immediately: %s", ErrLaunchFailed, stderr)
	case <-time.After(b.settleDelay):
	}

	devURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	for i := 0; i < b.readyAttempts; i++ {
		if devToolsReachable(devURL) {
			b.DevURL = devURL
			b.log.WithFields(logrus.Fields{"pid": cmd.Process.Pid, "devtools": devURL}).
				Info("chrome started")
			return nil
		}
		time.Sleep(b.readyBackoff)
	}

	b.closeLocked()
	return fmt.Errorf("%w: no answer at %s after %d attempts", ErrDevToolsUnavailable, devURL, b.readyAttempts)
}

// Close terminates the process: interrupt first, force-kill after the grace
// period. It is idempotent and never returns an error; teardown failures are
// logged because cleanup must run unconditionally.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Browser) closeLocked() {
	if b.cmd == nil {
		return
	}
	cmd, waitc := b.cmd, b.waitc
	b.cmd = nil
	b.waitc = nil
	b.DevURL = ""

	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		b.log.WithField("pid", pid).WithError(err).Debug("interrupt failed, killing")
		_ = cmd.Process.Kill()
	}

	select {
	case <-waitc:
		b.log.WithField("pid", pid).Debug("chrome terminated gracefully")
	case <-time.After(b.closeGrace):
		b.log.WithField("pid", pid).Warn("chrome did not terminate in time, killing")
		if err := cmd.Process.Kill(); err != nil {
			b.log.WithField("pid", pid).WithError(err).Error("kill failed")
		}
		<-waitc
	}
}

// Running reports whether the supervised process is alive.
func (b *Browser) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cmd != nil
}

func devToolsReachable(devURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, devURL+"/json", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
