package config

// Settings is the process configuration (settings.yaml or settings.json).
// It is separate from the schedule document, which the user edits at runtime.
//
// All durations are Go duration strings ("500ms", "5s").
type Settings struct {
	Logging  LoggingSettings  `json:"logging"`
	Storage  StorageSettings  `json:"storage"`
	Audio    AudioSettings    `json:"audio"`
	Banner   BannerSettings   `json:"banner"`
	Tray     TraySettings     `json:"tray"`
	Schedule ScheduleSettings `json:"schedule"`
}

type LoggingSettings struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageSettings controls the optional trigger history.
//
// Example:
//
//	storage: { driver: sqlite, path: ~/.local/share/wc_notice/history.db }
type StorageSettings struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	MaxRecords  int    `json:"max_records,omitempty"`
}

// AudioSettings selects the external player. An empty command probes PATH.
type AudioSettings struct {
	Enabled     bool     `json:"enabled"`
	Command     []string `json:"command,omitempty"`
	QueueSize   int      `json:"queue_size,omitempty"`
	PlayTimeout string   `json:"play_timeout,omitempty"`
}

type BannerSettings struct {
	Desktop  DesktopBanner  `json:"desktop"`
	Telegram TelegramBanner `json:"telegram"`
}

type DesktopBanner struct {
	Enabled bool     `json:"enabled"`
	Command []string `json:"command,omitempty"`
}

// TelegramBanner mirrors every banner into a chat. The token is never logged.
type TelegramBanner struct {
	Enabled    bool    `json:"enabled"`
	Token      string  `json:"token,omitempty"`
	ChatID     int64   `json:"chat_id,omitempty"`
	ThreadID   int     `json:"thread_id,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type TraySettings struct {
	Enabled     bool   `json:"enabled"`
	InitTimeout string `json:"init_timeout,omitempty"`
	GraceFrames int    `json:"grace_frames,omitempty"`
}

// ScheduleSettings locates the schedule document. An empty path means
// <user config dir>/wc_notice/schedule.yaml.
type ScheduleSettings struct {
	Path         string `json:"path,omitempty"`
	SaveDebounce string `json:"save_debounce,omitempty"`
	Watch        bool   `json:"watch"`
}
