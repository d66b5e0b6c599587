package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"venuebook/internal/booking"
	"venuebook/internal/mailer"
	"venuebook/internal/rabbit"
	"venuebook/internal/repo"
)

// Reader drains the notification queue and turns messages into mail.
// Delivery failures requeue the message; a transition is never rolled back
// because its notification could not be sent.
type Reader struct {
	RMQ    *rabbit.Client
	repo   repo.Repository
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, mail *mailer.Mailer) *Reader {
	return &Reader{
		RMQ:  rmq,
		repo: repo,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg booking.NotificationMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().Err(err).Msgf("failed to unmarshal message: %s", string(body))
				return err
			}

			subject, text := render(msg)
			if err := r.mail.Send(msg.Recipient, subject, text); err != nil {
				zlog.Logger.Warn().Err(err).
					Str("recipient", msg.Recipient).
					Str("kind", msg.Kind).
					Msg("failed to send notification email")
				return nil
			}

			if msg.Kind == "service_request" && msg.ServiceRequestID != "" {
				if err := r.repo.MarkEventServiceNotified(cctx, msg.ServiceRequestID); err != nil {
					zlog.Logger.Error().Err(err).
						Str("service_request_id", msg.ServiceRequestID).
						Msg("failed to mark service request notified")
				}
			}

			zlog.Logger.Info().
				Str("recipient", msg.Recipient).
				Str("kind", msg.Kind).
				Str("event_id", msg.EventID).
				Msg("notification delivered")
			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("notification reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func render(msg booking.NotificationMessage) (subject, body string) {
	switch msg.Kind {
	case "submitted":
		subject = "New event submission"
		body = fmt.Sprintf("The event %q has been submitted for review.", msg.EventTitle)
	case "approved":
		subject = "Your event was approved"
		body = fmt.Sprintf("Your event %q has been approved and is now public.", msg.EventTitle)
	case "declined":
		subject = "Your event was declined"
		body = fmt.Sprintf("Your event %q has been declined. You may edit and resubmit it.", msg.EventTitle)
	case "service_request":
		subject = fmt.Sprintf("Service requested for %q", msg.EventTitle)
		body = fmt.Sprintf("The event %q has requested your support.\n\nNotes: %s", msg.EventTitle, msg.Notes)
	default:
		subject = "Event notification"
		body = fmt.Sprintf("Update for event %q.", msg.EventTitle)
	}
	return subject, body
}
