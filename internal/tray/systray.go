package tray

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"image/png"

	"fyne.io/systray"
)

//go:embed icon.png
var defaultIcon []byte

// DefaultIcon returns the bundled tray icon.
func DefaultIcon() []byte { return append([]byte(nil), defaultIcon...) }

// ValidateIcon checks that icon is a decodable PNG before it reaches the platform.
func ValidateIcon(icon []byte) error {
	if _, err := png.DecodeConfig(bytes.NewReader(icon)); err != nil {
		return fmt.Errorf("tray icon: %w", err)
	}
	if _, err := png.Decode(bytes.NewReader(icon)); err != nil {
		return fmt.Errorf("tray icon: %w", err)
	}
	return nil
}

// SystrayDriver runs the tray through fyne.io/systray.
type SystrayDriver struct {
	Icon    []byte
	Title   string
	Tooltip string
}

func NewSystrayDriver() *SystrayDriver {
	return &SystrayDriver{Icon: DefaultIcon(), Tooltip: "WC Notice"}
}

func (d *SystrayDriver) Run(ctx context.Context, b *Bridge, ready func(error)) {
	if err := ValidateIcon(d.Icon); err != nil {
		ready(err)
		return
	}

	onReady := func() {
		systray.SetIcon(d.Icon)
		if d.Title != "" {
			systray.SetTitle(d.Title)
		}
		systray.SetTooltip(d.Tooltip)

		show := systray.AddMenuItem("Show window", "Bring the window to front")
		systray.AddSeparator()
		quit := systray.AddMenuItem("Exit", "Quit WC Notice")
		ready(nil)

		go func() {
			for {
				select {
				case <-show.ClickedCh:
					b.RequestShow()
				case <-quit.ClickedCh:
					b.RequestExit()
				case <-ctx.Done():
					systray.Quit()
					return
				}
			}
		}()
	}
	systray.Run(onReady, func() {})
}
