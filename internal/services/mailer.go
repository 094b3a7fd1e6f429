package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/wandertours/apiserver/internal/mq"
)

// Mail templates understood by the mailer worker.
const (
	MailWelcome       = "welcome"
	MailPasswordReset = "password-reset"
)

// MailJob is the payload handed to the out-of-process mailer worker.
type MailJob struct {
	Template string `json:"template"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// Mailer delivers mail jobs to the out-of-band message channel.
type Mailer interface {
	Send(ctx context.Context, job MailJob) error
}

// QueueMailer publishes mail jobs to a broker channel.
type QueueMailer struct {
	backend mq.Backend
	channel string
}

func NewQueueMailer(backend mq.Backend, channel string) *QueueMailer {
	return &QueueMailer{backend: backend, channel: channel}
}

func (m *QueueMailer) Send(ctx context.Context, job MailJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = m.backend.Publish(ctx, m.channel, data, map[string]string{"template": job.Template})
	return err
}

// LogMailer records mail jobs to the process log; the development default.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, job MailJob) error {
	log.Printf("mail %s to %s: %s", job.Template, job.Email, job.URL)
	return nil
}
