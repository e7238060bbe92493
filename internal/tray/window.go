package tray

import "fmt"

// Action is what the interactive loop should do after observing a frame.
type Action int

const (
	ActionNone Action = iota
	ActionHideToTray
)

// DefaultGraceFrames is how many frames a restore suppresses minimize detection.
const DefaultGraceFrames = 3

// WindowTracker turns per-frame "is minimized" samples into hide-to-tray actions.
//
// The windowing system acknowledges visibility commands asynchronously, so right
// after Restore the window may still report minimized for a frame or two. The
// tracker ignores that many frames instead of reading them as a new minimize.
// This is a heuristic; a slow compositor can outlast the grace window.
//
// Not safe for concurrent use; it belongs to the interactive loop.
type WindowTracker struct {
	graceFrames  int
	grace        int
	wasMinimized bool
}

func NewWindowTracker(graceFrames int) *WindowTracker {
	if graceFrames <= 0 {
		graceFrames = DefaultGraceFrames
	}
	return &WindowTracker{graceFrames: graceFrames}
}

// Observe records this frame's sample.
func (t *WindowTracker) Observe(minimized bool) Action {
	if t.grace > 0 {
		t.grace--
		t.wasMinimized = minimized
		return ActionNone
	}
	edge := minimized && !t.wasMinimized
	t.wasMinimized = minimized
	if edge {
		return ActionHideToTray
	}
	return ActionNone
}

// Restore is called after issuing a restore/focus command.
func (t *WindowTracker) Restore() {
	t.grace = t.graceFrames
	t.wasMinimized = false
}

func (t *WindowTracker) Restoring() bool { return t.grace > 0 }

func (t *WindowTracker) String() string {
	if t.grace > 0 {
		return fmt.Sprintf("RestoringFallback(%d)", t.grace)
	}
	return "Normal"
}
