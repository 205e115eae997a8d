package bot

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stock-signals/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// AlertDispatcher broadcasts actionable signals to subscribed chats.
type AlertDispatcher struct {
	sender messageSender

	mu          sync.RWMutex
	subscribers map[int64]struct{}
}

func NewAlertDispatcher(sender messageSender) *AlertDispatcher {
	return &AlertDispatcher{
		sender:      sender,
		subscribers: make(map[int64]struct{}),
	}
}

func (d *AlertDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; exists {
		return false
	}
	d.subscribers[chatID] = struct{}{}
	return true
}

func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; !exists {
		return false
	}
	delete(d.subscribers, chatID)
	return true
}

func (d *AlertDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.subscribers[chatID]
	return exists
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// SignalAlert fans a single signal out to every subscriber. Send failures are
// swallowed so scoring never blocks on Telegram.
func (d *AlertDispatcher) SignalAlert(signal domain.CombinedSignal) {
	if d == nil || d.sender == nil {
		return
	}

	chatIDs := d.snapshotSubscribers()
	if len(chatIDs) == 0 {
		return
	}

	msg := "Signal alert:\n" + formatSignal(signal)
	for _, chatID := range chatIDs {
		_, _ = d.sender.Send(&tele.Chat{ID: chatID}, msg)
	}
}

func (d *AlertDispatcher) snapshotSubscribers() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func parseAlertMode(args []string) (string, error) {
	if len(args) == 0 {
		return "status", nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		return "on", nil
	case "off":
		return "off", nil
	case "status":
		return "status", nil
	default:
		return "", fmt.Errorf("invalid mode")
	}
}

func formatSignal(s domain.CombinedSignal) string {
	line := fmt.Sprintf(
		"%s %s (%s) combined %.2f (ml %.1f / inflection %.1f) at %s",
		s.Symbol,
		s.Action,
		s.Confidence,
		s.CombinedScore,
		s.MLScore,
		s.InflectionScore,
		s.Timestamp.UTC().Format(time.RFC822),
	)
	if s.ID > 0 {
		line = fmt.Sprintf("#%d %s", s.ID, line)
	}
	return line
}
