package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	logx "wcnotice/pkg/logx"
)

var ErrNoPlayer = errors.New("no audio player command available")

// Player plays a clip to completion.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(ctx context.Context, clip Clip) error

func (f PlayerFunc) Play(ctx context.Context, clip Clip) error { return f(ctx, clip) }

// playerCandidates are tried in order when no command is configured.
var playerCandidates = [][]string{
	{"paplay"},
	{"pw-play"},
	{"afplay"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
	{"aplay", "-q"},
}

// CommandPlayer writes the clip to a temp file and runs an external player on it.
type CommandPlayer struct {
	argv    []string
	tempDir string
	log     logx.Logger
}

// NewCommandPlayer uses command (the clip path is appended as the last
// argument) or, if empty, the first candidate found on PATH.
func NewCommandPlayer(command []string, log logx.Logger) (*CommandPlayer, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	argv, err := resolveCommand(command, playerCandidates)
	if err != nil {
		return nil, ErrNoPlayer
	}
	log.Debug("audio player selected", logx.String("cmd", strings.Join(argv, " ")))
	return &CommandPlayer{argv: argv, log: log}, nil
}

func (p *CommandPlayer) Command() []string { return append([]string(nil), p.argv...) }

func (p *CommandPlayer) Play(ctx context.Context, clip Clip) error {
	f, err := os.CreateTemp(p.tempDir, "wcnotice-*"+clip.Format.Ext())
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(clip.Data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	args := append(append([]string(nil), p.argv[1:]...), path)
	out, err := exec.CommandContext(ctx, p.argv[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", p.argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// resolveCommand returns command with its binary resolved, or the first
// candidate whose binary is on PATH.
func resolveCommand(command []string, candidates [][]string) ([]string, error) {
	if len(command) > 0 && strings.TrimSpace(command[0]) != "" {
		bin, err := exec.LookPath(command[0])
		if err != nil {
			return nil, err
		}
		return append([]string{bin}, command[1:]...), nil
	}
	for _, c := range candidates {
		if bin, err := exec.LookPath(c[0]); err == nil {
			return append([]string{bin}, c[1:]...), nil
		}
	}
	return nil, exec.ErrNotFound
}
