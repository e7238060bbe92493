package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"wcnotice/internal/schedule"
	"wcnotice/pkg/tgui"
)

var ErrNoBanner = errors.New("no desktop notification command available")

// Banner shows a user-visible notification.
type Banner interface {
	Show(ctx context.Context, title, body string) error
}

// BannerFunc adapts a function to Banner.
type BannerFunc func(ctx context.Context, title, body string) error

func (f BannerFunc) Show(ctx context.Context, title, body string) error { return f(ctx, title, body) }

// Title is the banner title for a period kind.
func Title(kind schedule.PeriodKind) string { return "🔔 " + kind.Label() }

var bannerCandidates = [][]string{
	{"notify-send", "-a", "wcnotice", "-i", "dialog-information", "-t", "5000"},
}

// CommandBanner runs a notify-send style command with title and body appended.
type CommandBanner struct {
	argv []string
}

func NewCommandBanner(command []string) (*CommandBanner, error) {
	argv, err := resolveCommand(command, bannerCandidates)
	if err != nil {
		return nil, ErrNoBanner
	}
	return &CommandBanner{argv: argv}, nil
}

func (b *CommandBanner) Show(ctx context.Context, title, body string) error {
	args := append(append([]string(nil), b.argv[1:]...), title, body)
	out, err := exec.CommandContext(ctx, b.argv[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", b.argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// TelegramConfig targets a chat (and optionally a forum topic).
type TelegramConfig struct {
	Token      string
	ChatID     int64
	ThreadID   int
	RatePerSec float64
}

// telegramSender is the subset of *tele.Bot used here.
type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramBanner mirrors banners into a Telegram chat.
type TelegramBanner struct {
	bot      telegramSender
	chat     *tele.Chat
	threadID int
	limiter  *rate.Limiter
}

func NewTelegramBanner(cfg TelegramConfig) (*TelegramBanner, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	return newTelegramBanner(bot, cfg), nil
}

func newTelegramBanner(bot telegramSender, cfg TelegramConfig) *TelegramBanner {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &TelegramBanner{
		bot:      bot,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (b *TelegramBanner) Show(ctx context.Context, title, body string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.bot.Send(b.chat, tgui.Card(title, body).String(), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              b.threadID,
	})
	return err
}

// MultiBanner shows on every sink and joins the failures.
type MultiBanner []Banner

func (m MultiBanner) Show(ctx context.Context, title, body string) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		start := time.Now()
		if err := b.Show(ctx, title, body); err != nil {
			errs = append(errs, fmt.Errorf("%T after %s: %w", b, time.Since(start).Round(time.Millisecond), err))
		}
	}
	return errors.Join(errs...)
}
