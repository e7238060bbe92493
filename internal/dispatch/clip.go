package dispatch

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"wcnotice/internal/schedule"
)

//go:embed assets/*.wav
var assetsFS embed.FS

var ErrUnsupportedFormat = errors.New("unsupported audio format")

type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Ext is the file extension players use to pick a demuxer.
func (f Format) Ext() string { return "." + string(f) }

// Clip is a decoded-enough audio payload ready to hand to a Player.
type Clip struct {
	Name   string
	Data   []byte
	Format Format
}

// BuiltinClip returns the bundled asset for b.
func BuiltinClip(b schedule.BuiltinSound) (Clip, error) {
	data, err := assetsFS.ReadFile("assets/" + b.AssetName())
	if err != nil {
		return Clip{}, fmt.Errorf("builtin sound %q: %w", b, err)
	}
	return Clip{Name: string(b), Data: data, Format: FormatWAV}, nil
}

// Sniff classifies data by its magic bytes.
func Sniff(data []byte) (Format, bool) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV, true
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3, true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, true
	}
	return "", false
}

// Probe checks that data decodes far enough to be worth handing to a player.
// Passing the probe does not guarantee playback succeeds.
func Probe(data []byte) (Format, error) {
	f, ok := Sniff(data)
	if !ok {
		return "", ErrUnsupportedFormat
	}
	switch f {
	case FormatWAV:
		return f, probeWAV(data)
	default:
		return f, probeMP3(data)
	}
}

func probeWAV(data []byte) error {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return errors.New("wav: invalid file")
	}
	if d.SampleRate == 0 || d.NumChans == 0 {
		return errors.New("wav: missing format chunk")
	}
	if _, err := d.Duration(); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return nil
}

func probeMP3(data []byte) error {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("mp3: %w", err)
	}
	if d.SampleRate() <= 0 {
		return errors.New("mp3: no sample rate")
	}
	buf := make([]byte, 4096)
	n, err := io.ReadFull(d, buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("mp3: no decodable frames: %w", err)
	}
	return nil
}
