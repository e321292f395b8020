package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatTarget addresses a chat and, for forum groups, a topic thread.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // 0 if none
}

func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%d:%d", t.ChatID, t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// ParseChatTarget parses "<chat id>[:<thread id>]".
func ParseChatTarget(s string) (ChatTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("empty chat target")
	}
	chat, thread, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q", chat)
	}
	t := ChatTarget{ChatID: id}
	if hasThread {
		tid, err := strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || tid < 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread id %q", thread)
		}
		t.ThreadID = tid
	}
	return t, nil
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}
