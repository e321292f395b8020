package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "agentcron/internal/transport"
	logx "agentcron/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL     string
	RatePerSec int
	RetryMax   int
	Timeout    time.Duration
}

// Sender posts plain-text messages. It never polls for updates.
type Sender struct {
	log logx.Logger
	bot *tele.Bot

	mu       sync.Mutex
	limiter  *rate.Limiter
	retryMax int
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimSpace(cfg.APIURL),
		Token:   cfg.Token,
		Offline: true,
		Client:  newHTTPClient(timeout),
	})
	if err != nil {
		return nil, err
	}
	s := &Sender{log: log, bot: b}
	s.Apply(cfg)
	return s, nil
}

// Apply updates rate and retry limits.
func (s *Sender) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	retry := cfg.RetryMax
	if retry < 0 {
		retry = 0
	}
	s.mu.Lock()
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	s.retryMax = retry
	s.mu.Unlock()
}

// Announce implements delivery.Announcer; to is "<chat id>[:<thread id>]".
func (s *Sender) Announce(ctx context.Context, to, text string) error {
	target, err := kit.ParseChatTarget(to)
	if err != nil {
		return err
	}
	return s.SendText(ctx, target, text, &kit.SendOptions{DisablePreview: true})
}

// SendText sends text, split into Telegram-sized chunks. Each chunk is
// retried with a short linear backoff.
func (s *Sender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	s.mu.Lock()
	lim := s.limiter
	retry := s.retryMax
	s.mu.Unlock()

	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		if err := s.sendChunk(ctx, chat, chunk, sendOpt, retry); err != nil {
			s.log.Warn("telegram send failed", logx.String("target", to.String()), logx.Err(err))
			return err
		}
	}
	s.log.Debug("telegram message sent", logx.String("target", to.String()))
	return nil
}

func (s *Sender) sendChunk(ctx context.Context, chat *tele.Chat, chunk string, opt *tele.SendOptions, retry int) error {
	var last error
	for i := 0; i <= retry; i++ {
		_, err := s.bot.Send(chat, chunk, opt)
		if err == nil {
			return nil
		}
		last = err
		if i == retry {
			break
		}
		delay := time.Duration(200+100*i) * time.Millisecond
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return last
}
