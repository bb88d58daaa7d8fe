// Package notify publishes templated operator mails to the emails queue.
// The templates themselves live downstream; this side only resolves which
// parameters a template requires and fills them from the supplied values.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cgdops/rtaingest/internal/event"
)

// Mail template ids the pipeline emits.
const (
	TemplateRejected      = "PC009"
	TemplateRetryPlanned  = "PC012"
	TemplateLoadingFailed = "PC013"
)

// TemplateStore resolves a template's ordered parameter names.
type TemplateStore interface {
	MailTemplateParams(ctx context.Context, templateID string) ([]string, error)
}

// Publisher sends one message body to a queue.
type Publisher interface {
	Send(ctx context.Context, queueURL, body string, delaySeconds int32) error
}

// Notifier assembles and publishes notification messages.
type Notifier struct {
	store    TemplateStore
	queue    Publisher
	queueURL string
	log      *slog.Logger
}

func New(store TemplateStore, queue Publisher, queueURL string, logger *slog.Logger) *Notifier {
	return &Notifier{store: store, queue: queue, queueURL: queueURL, log: logger}
}

// Send publishes one notification for templateID. Parameter names the
// template requires but values does not carry resolve to the empty string;
// a notification never fails over a missing display value.
func (n *Notifier) Send(ctx context.Context, templateID string, values map[string]string) error {
	names, err := n.store.MailTemplateParams(ctx, templateID)
	if err != nil {
		return fmt.Errorf("failed to resolve template %s: %w", templateID, err)
	}

	msg := event.Notification{Template: templateID, Parameters: make([]event.NotificationParam, 0, len(names))}
	for _, name := range names {
		msg.Parameters = append(msg.Parameters, event.NotificationParam{
			Name:  name,
			Value: values[name],
		})
	}

	body, err := event.Encode(msg)
	if err != nil {
		return err
	}
	if err := n.queue.Send(ctx, n.queueURL, body, 0); err != nil {
		return err
	}
	n.log.Info("notification published", slog.String("template", templateID))
	return nil
}
