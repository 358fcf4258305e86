package cli

// Shared CLI flags (used across multiple command files)
var (
	cfgFile string
	verbose bool

	// Browser overrides. Only flags the user actually set are applied over
	// the configuration file.
	chromePath     string
	remotePort     int
	headless       bool
	disableImages  bool
	startMaximized bool
	memoryLimitMB  int
	proxyServer    string
	userDataDir    string
)
