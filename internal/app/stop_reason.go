package app

// StopReason records why the process is shutting down.
type StopReason string

const (
	StopUnknown StopReason = "unknown"
	StopSignal  StopReason = "signal"
	// StopQuit covers the quit command and the tray's Exit item.
	StopQuit  StopReason = "quit"
	StopFatal StopReason = "fatal_error"
)
