/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/wandertours/apiserver/config"
	"github.com/wandertours/apiserver/internal/mq"
	"github.com/wandertours/apiserver/internal/services"
)

// mailworkerCmd represents the mailworker command.
var mailworkerCmd = &cobra.Command{
	Use:   "mailworker",
	Short: "Consume queued mail jobs",
	Long: `Consumes mail jobs from the configured message channel and logs each
delivery. Rendering and SMTP submission are left to the production mail
pipeline; this worker is the development stand-in.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx := cmd.Context()

		var backend mq.Backend
		var err error
		switch cfg.Mail.Backend {
		case "rabbitmq":
			backend, err = mq.NewRabbitBackend(cfg.RabbitMQ)
		case "pubsub":
			backend, err = mq.NewPubSubBackend(ctx, cfg.PubSub)
		default:
			return fmt.Errorf("mail backend %q has no queue to consume", cfg.Mail.Backend)
		}
		if err != nil {
			return err
		}
		defer func() {
			_ = backend.Close()
		}()

		log.Printf("consuming mail jobs from %s", cfg.Mail.Channel)
		return backend.Subscribe(ctx, cfg.Mail.Channel, handleMailJob)
	},
}

func handleMailJob(_ context.Context, msg mq.Message) error {
	var job services.MailJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		log.Printf("discarding malformed mail job %s: %v", msg.ID, err)
		return nil
	}
	log.Printf("mail %s to %s (%s): %s", job.Template, job.Email, job.Name, job.URL)
	return nil
}

func init() {
	rootCmd.AddCommand(mailworkerCmd)
}
