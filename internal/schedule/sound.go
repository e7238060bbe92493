package schedule

import "fmt"

// PeriodKind selects the default sound and the notification title of a period.
type PeriodKind string

const (
	KindStart PeriodKind = "start"
	KindEnd   PeriodKind = "end"
)

func (k PeriodKind) Valid() bool { return k == KindStart || k == KindEnd }

// Label is the human-readable name used in notification titles.
func (k PeriodKind) Label() string {
	switch k {
	case KindStart:
		return "Start"
	case KindEnd:
		return "End"
	default:
		return string(k)
	}
}

func (k PeriodKind) DefaultSound() BuiltinSound {
	if k == KindEnd {
		return BellEnd
	}
	return BellStart
}

// ParsePeriodKind accepts "start" or "end" (case-sensitive, as persisted).
func ParsePeriodKind(s string) (PeriodKind, error) {
	k := PeriodKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown period kind %q", s)
	}
	return k, nil
}

// BuiltinSound is one of the bundled audio assets.
type BuiltinSound string

const (
	BellStart BuiltinSound = "bell_start"
	BellEnd   BuiltinSound = "bell_end"
	BellOther BuiltinSound = "bell_other"
)

// AllBuiltinSounds lists the closed set of bundled sounds in menu order.
var AllBuiltinSounds = []BuiltinSound{BellStart, BellEnd, BellOther}

func (b BuiltinSound) Valid() bool {
	for _, s := range AllBuiltinSounds {
		if s == b {
			return true
		}
	}
	return false
}

// AssetName is the embedded file name of the sound.
func (b BuiltinSound) AssetName() string { return string(b) + ".wav" }

type SourceType string

const (
	SourceBuiltin SourceType = "builtin"
	SourceLocal   SourceType = "local"
)

// SoundSource is either a bundled sound or a user-supplied file.
//
// A Local source is only validated when it is dispatched; the file may vanish
// or be undecodable at any time.
type SoundSource struct {
	Type    SourceType   `yaml:"type" json:"type"`
	Builtin BuiltinSound `yaml:"builtin,omitempty" json:"builtin,omitempty"`
	Path    string       `yaml:"path,omitempty" json:"path,omitempty"`
}

func Builtin(b BuiltinSound) SoundSource { return SoundSource{Type: SourceBuiltin, Builtin: b} }

func Local(path string) SoundSource { return SoundSource{Type: SourceLocal, Path: path} }

func DefaultSoundFor(kind PeriodKind) SoundSource { return Builtin(kind.DefaultSound()) }

func (s SoundSource) IsLocal() bool { return s.Type == SourceLocal }

// Valid reports whether the source is well-formed. It does not touch the filesystem.
func (s SoundSource) Valid() bool {
	switch s.Type {
	case SourceBuiltin:
		return s.Builtin.Valid()
	case SourceLocal:
		return s.Path != ""
	default:
		return false
	}
}

func (s SoundSource) String() string {
	if s.IsLocal() {
		return "local:" + s.Path
	}
	return "builtin:" + string(s.Builtin)
}

// SoundSlots holds the sound used for each period kind of a profile.
type SoundSlots struct {
	Start SoundSource `yaml:"start" json:"start"`
	End   SoundSource `yaml:"end" json:"end"`
}

func DefaultSoundSlots() SoundSlots {
	return SoundSlots{
		Start: DefaultSoundFor(KindStart),
		End:   DefaultSoundFor(KindEnd),
	}
}

// For returns the configured source for kind.
func (s SoundSlots) For(kind PeriodKind) SoundSource {
	if kind == KindEnd {
		return s.End
	}
	return s.Start
}

func (s *SoundSlots) Set(kind PeriodKind, src SoundSource) {
	if kind == KindEnd {
		s.End = src
		return
	}
	s.Start = src
}

// repair replaces malformed slots with the kind's default.
func (s *SoundSlots) repair() {
	if !s.Start.Valid() {
		s.Start = DefaultSoundFor(KindStart)
	}
	if !s.End.Valid() {
		s.End = DefaultSoundFor(KindEnd)
	}
}
