package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-signals/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type SignalScorer interface {
	ScoreSymbol(ctx context.Context, symbol string) (domain.CombinedSignal, error)
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.CombinedSignal, error)
}

// StartTelegramBot wires the command handlers and begins long polling. It
// returns nil when no token is configured, which callers treat as
// alerts-disabled.
func StartTelegramBot(signalService SignalScorer, symbols []string) *AlertDispatcher {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	alerts := NewAlertDispatcher(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/score", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send(fmt.Sprintf("Usage: /score 005930\nTracked: %s", strings.Join(symbols, ", ")))
		}
		symbol := strings.TrimSpace(args[0])
		signal, err := signalService.ScoreSymbol(context.Background(), symbol)
		if err != nil {
			return c.Send(fmt.Sprintf("Error scoring %s: %v", symbol, err))
		}
		return c.Send(formatSignal(signal))
	})

	b.Handle("/signals", func(c tele.Context) error {
		filter, err := parseSignalArgs(c.Args())
		if err != nil {
			return c.Send("Usage: /signals 005930 | /signals --action BUY | /signals 005930 --limit 10")
		}

		signals, err := signalService.ListSignals(context.Background(), filter)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching signals: %v", err))
		}
		if len(signals) == 0 {
			return c.Send("No matching signals right now.")
		}

		lines := make([]string, 0, len(signals)+1)
		lines = append(lines, "Latest signals:")
		for _, s := range signals {
			lines = append(lines, formatSignal(s))
		}
		return c.Send(strings.Join(lines, "\n"))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseAlertMode(c.Args())
		if err != nil {
			return c.Send("Usage: /alerts on | /alerts off | /alerts status")
		}

		switch mode {
		case "on":
			if alerts.Subscribe(chat.ID) {
				return c.Send("Signal alerts enabled for this chat.")
			}
			return c.Send("Signal alerts are already enabled for this chat.")
		case "off":
			if alerts.Unsubscribe(chat.ID) {
				return c.Send("Signal alerts disabled for this chat.")
			}
			return c.Send("Signal alerts are already disabled for this chat.")
		default:
			if alerts.IsSubscribed(chat.ID) {
				return c.Send("Alerts status: ON")
			}
			return c.Send("Alerts status: OFF")
		}
	})

	log.Println("Telegram bot started")
	go b.Start()
	return alerts
}

func parseSignalArgs(args []string) (domain.SignalFilter, error) {
	filter := domain.SignalFilter{Limit: 5}

	for i := 0; i < len(args); i++ {
		arg := strings.TrimSpace(args[i])
		if arg == "" {
			continue
		}

		if strings.HasPrefix(arg, "--action=") {
			action := domain.Action(strings.ToUpper(strings.TrimPrefix(arg, "--action=")))
			if !action.IsValid() {
				return domain.SignalFilter{}, errors.New("unknown action")
			}
			filter.Action = action
			continue
		}

		if arg == "--action" {
			if i+1 >= len(args) {
				return domain.SignalFilter{}, errors.New("missing action value")
			}
			i++
			action := domain.Action(strings.ToUpper(args[i]))
			if !action.IsValid() {
				return domain.SignalFilter{}, errors.New("unknown action")
			}
			filter.Action = action
			continue
		}

		if strings.HasPrefix(arg, "--limit=") {
			limit, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit="))
			if err != nil || limit <= 0 {
				return domain.SignalFilter{}, errors.New("invalid limit")
			}
			filter.Limit = limit
			continue
		}

		if arg == "--limit" {
			if i+1 >= len(args) {
				return domain.SignalFilter{}, errors.New("missing limit value")
			}
			i++
			limit, err := strconv.Atoi(args[i])
			if err != nil || limit <= 0 {
				return domain.SignalFilter{}, errors.New("invalid limit")
			}
			filter.Limit = limit
			continue
		}

		if strings.HasPrefix(arg, "--") {
			return domain.SignalFilter{}, errors.New("unknown option")
		}
		if filter.Symbol != "" {
			return domain.SignalFilter{}, errors.New("multiple symbols provided")
		}
		filter.Symbol = arg
	}

	return filter, nil
}
