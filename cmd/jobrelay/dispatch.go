package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/job"
	"github.com/velmie/jobrelay/mysql"
	"github.com/velmie/jobrelay/rabbitmq"
)

func newDispatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch <job-name>",
		Short: "Queue a job message",
		Long: `Queue a job message for the consumers.

With --transport mysql the message is inserted into the job message table; with
--transport rabbitmq it is published to the job exchange with a routing key derived
from the job name (hyphens become dots). The new message ID is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDispatch(cmd.Context(), args[0])
		},
	}

	f := cmd.Flags()
	f.String("transport", transportMySQL, "Queue transport: mysql or rabbitmq")
	f.String("payload", "{}", "Job payload, a JSON object")
	f.Bool("check", true, "Check the payload against the loaded job definitions first")

	return cmd
}

func (a *app) runDispatch(ctx context.Context, jobName string) error {
	transport, err := a.transport()
	if err != nil {
		return err
	}

	env := jobrelay.Envelope{JobName: jobName, Payload: json.RawMessage(a.v.GetString("payload"))}
	if err := env.Validate(); err != nil {
		return err
	}
	if a.v.GetBool("check") {
		if err := a.checkPayload(env); err != nil {
			return err
		}
	}

	var id jobrelay.ID
	if transport == transportRabbitMQ {
		id, err = a.publish(ctx, env)
	} else {
		id, err = a.enqueue(ctx, env)
	}
	if err != nil {
		return err
	}

	a.logger().Info("jobrelay message queued", "id", id, "job", jobName, "transport", transport)
	_, err = fmt.Fprintln(a.out, id)

	return err
}

func (a *app) checkPayload(env jobrelay.Envelope) error {
	registry, err := a.registry()
	if err != nil {
		return err
	}
	payload, err := job.DecodePayload(env.PayloadOrEmpty())
	if err != nil {
		return err
	}

	return registry.Validate(env.JobName, payload)
}

func (a *app) enqueue(ctx context.Context, env jobrelay.Envelope) (jobrelay.ID, error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return jobrelay.ID{}, err
	}
	defer db.Close()

	store, err := mysql.NewStore(db, mysql.WithTable(a.v.GetString("table")))
	if err != nil {
		return jobrelay.ID{}, err
	}

	return store.Enqueue(ctx, db, env)
}

func (a *app) publish(ctx context.Context, env jobrelay.Envelope) (jobrelay.ID, error) {
	conn, ch, err := a.dialAMQP()
	if err != nil {
		return jobrelay.ID{}, err
	}
	defer conn.Close()
	defer ch.Close()

	topology := a.topology()
	if err := rabbitmq.DeclareTopology(ch, topology); err != nil {
		return jobrelay.ID{}, err
	}
	pub, err := rabbitmq.NewPublisher(ch, rabbitmq.WithTopology(topology), rabbitmq.WithLogger(a.logger()))
	if err != nil {
		return jobrelay.ID{}, err
	}

	return pub.Publish(ctx, env)
}
