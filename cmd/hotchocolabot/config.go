package main

// Flag names for Viper binding
const (
	// Global flags
	FlagVerbose    = "verbose"
	FlagConfig     = "config"
	FlagLogFile    = "log-file"
	FlagSocketPath = "socket"

	// Hardware overrides
	FlagDriver     = "driver"
	FlagSerialPort = "serial-port"

	// Run command flags
	FlagTUI = "tui"

	// Metrics flags
	FlagMetricsTextfile = "metrics-textfile"

	// Status command flags
	FlagJSON = "json"

	// Config init flags
	FlagForce  = "force"
	FlagGlobal = "global"
)
