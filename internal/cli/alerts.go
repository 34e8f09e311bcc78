package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/mq"
)

type alertView struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Job        string `json:"job"`
	HolderID   string `json:"holder_id"`
	Error      string `json:"error,omitempty"`
	Duration   string `json:"duration"`
	OccurredAt string `json:"occurred_at"`
}

func newAlertView(msg mq.Message) alertView {
	return alertView{
		ID:         msg.ID,
		Kind:       string(msg.Type),
		Job:        msg.Alert.Job,
		HolderID:   msg.Alert.HolderID,
		Error:      msg.Alert.Error,
		Duration:   formatDuration(msg.Alert.Duration),
		OccurredAt: formatTime(msg.Alert.OccurredAt),
	}
}

// NewAlertsCmd создаёт группу команд для оповещений из RabbitMQ.
func NewAlertsCmd(envFn EnvFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Consume job alerts from RabbitMQ",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print alerts as they arrive until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := envFn(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			url := env.Config.RabbitMQURL
			if url == "" {
				url = mq.DefaultURL()
			}
			conn, err := mq.Dial(url, env.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.SetupTopology(ctx, conn); err != nil {
				return fmt.Errorf("setup alert topology: %w", err)
			}

			out := outputFn()
			consumer := mq.NewConsumer(conn, env.Logger, mq.ConsumerConfig{
				Handler: func(_ context.Context, msg mq.Message) error {
					printAlert(out, msg)
					return nil
				},
			})

			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	})

	return cmd
}

// printAlert: одна строка на оповещение, в JSON-режиме один объект на строку.
func printAlert(out *Output, msg mq.Message) {
	v := newAlertView(msg)
	if out.JSONMode() {
		out.JSONLine(v)
		return
	}
	out.Line(fmt.Sprintf("%s  %-18s  %s  holder=%s  duration=%s  %s",
		v.OccurredAt, v.Kind, v.Job, v.HolderID, v.Duration, orDash(v.Error)))
}
