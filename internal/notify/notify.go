package notify

import (
	"context"
	"fmt"
	"strings"

	"crypto-portfolio-monitor/internal/types"

	log "github.com/sirupsen/logrus"
)

const (
	telegramPrefix = "telegram:"
	mailtoPrefix   = "mailto:"
)

// Notifier delivers one message to a recipient.
type Notifier interface {
	Notify(ctx context.Context, target, subject, body string) error
}

// Router picks the sink from the target: "telegram:<chat id>", "mailto:<address>"
// or a bare email address.
type Router struct {
	Telegram Notifier
	Mail     Notifier
}

func (r *Router) Notify(ctx context.Context, target, subject, body string) error {
	sink, name, recipient := r.route(strings.TrimSpace(target))
	if name == "" {
		return types.NewError(types.KindNotification, "route notification",
			fmt.Errorf("unsupported notification target %q", target))
	}
	if sink == nil {
		return types.NewError(types.KindNotification, "route notification",
			fmt.Errorf("no %s sink configured for %q", name, target))
	}
	if err := sink.Notify(ctx, recipient, subject, body); err != nil {
		return types.NewError(types.KindNotification, "notify via "+name, err)
	}
	return nil
}

func (r *Router) route(target string) (Notifier, string, string) {
	switch {
	case strings.HasPrefix(target, telegramPrefix):
		return r.Telegram, "telegram", strings.TrimPrefix(target, telegramPrefix)
	case strings.HasPrefix(target, mailtoPrefix):
		return r.Mail, "mail", strings.TrimPrefix(target, mailtoPrefix)
	case strings.Contains(target, "@"):
		return r.Mail, "mail", target
	}
	return nil, "", ""
}

// Log writes notifications to the log instead of delivering them.
type Log struct{}

func (Log) Notify(_ context.Context, target, subject, body string) error {
	log.WithFields(log.Fields{
		"component": "notify",
		"target":    target,
		"subject":   subject,
	}).Info(body)
	return nil
}
