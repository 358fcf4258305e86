package chrome

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// DefaultRemotePort is the conventional Chrome remote-debugging port.
const DefaultRemotePort = 9222

// fallbackMemoryLimitMB is used when total system memory cannot be read.
const fallbackMemoryLimitMB = 2048

// Options is the session configuration. It is read once at Start and never
// mutated afterwards.
type Options struct {
	// BinaryPath overrides executable auto-discovery.
	BinaryPath string `json:"binaryPath,omitempty" yaml:"binaryPath,omitempty"`

	// RemotePort is the remote-debugging port Chrome listens on.
	RemotePort int `json:"remotePort,omitempty" yaml:"remotePort,omitempty"`

	Headless       bool   `json:"headless,omitempty" yaml:"headless,omitempty"`
	DisableImages  bool   `json:"disableImages,omitempty" yaml:"disableImages,omitempty"`
	DisableGPU     bool   `json:"disableGpu,omitempty" yaml:"disableGpu,omitempty"`
	StartMaximized bool   `json:"startMaximized,omitempty" yaml:"startMaximized,omitempty"`
	UserDataDir    string `json:"userDataDir,omitempty" yaml:"userDataDir,omitempty"`
	ProxyServer    string `json:"proxyServer,omitempty" yaml:"proxyServer,omitempty"`

	// MemoryLimitMB caps the JS heap. Zero means DefaultMemoryLimitMB().
	MemoryLimitMB int `json:"memoryLimitMb,omitempty" yaml:"memoryLimitMb,omitempty"`
}

// DefaultOptions returns the configuration used when nothing is overridden:
// headful, images disabled, default port, memory ceiling from system memory.
func DefaultOptions() Options {
	return Options{
		RemotePort:    DefaultRemotePort,
		DisableImages: true,
		MemoryLimitMB: DefaultMemoryLimitMB(),
	}
}

// DefaultMemoryLimitMB is 75% of total system memory, floored to the nearest
// hundred MB.
func DefaultMemoryLimitMB() int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fallbackMemoryLimitMB
	}
	totalMB := int(vm.Total / (1024 * 1024))
	return floorToHundreds(totalMB * 3 / 4)
}

func floorToHundreds(x int) int {
	return x / 100 * 100
}

// Args builds the Chrome command line for these options.
func (o Options) Args() []string {
	port := o.RemotePort
	if port == 0 {
		port = DefaultRemotePort
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-popup-blocking",
		"--disable-extensions",
		"--disable-infobars",
		"--disable-notifications",
	}

	if o.Headless {
		args = append(args, "--headless")
	}
	if o.DisableGPU {
		args = append(args, "--disable-gpu")
	}
	if o.DisableImages {
		args = append(args, "--blink-settings=imagesEnabled=false")
	}
	if o.StartMaximized {
		args = append(args, "--start-maximized")
	}
	if o.UserDataDir != "" {
		args = append(args, "--user-data-dir="+o.UserDataDir)
	}
	if o.ProxyServer != "" {
		args = append(args, "--proxy-server="+o.ProxyServer)
	}
	limit := o.MemoryLimitMB
	if limit <= 0 {
		limit = DefaultMemoryLimitMB()
	}
	args = append(args, fmt.Sprintf("--js-flags=--max_old_space_size=%d", limit))

	return args
}
