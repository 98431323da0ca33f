// admin_sender publishes an admin command to a running server and prints the
// reply.
//
//	NATS_URL=nats://localhost:4222 go run ./tools/admin_sender reconnect
package main

import (
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/120m4n/infovis/internal/control"
	"github.com/120m4n/infovis/internal/logging"
)

func main() {
	logging.Init(logging.Config{Format: "console"})

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	subject := os.Getenv("NATS_SUBJECT")
	if subject == "" {
		subject = "infovis.admin"
	}
	action := control.ActionPing
	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Error connecting to NATS")
	}
	defer nc.Close()

	data, err := json.Marshal(control.Request{Action: action})
	if err != nil {
		logging.Fatal().Err(err).Msg("Error marshalling request")
	}

	msg, err := nc.Request(subject, data, 15*time.Second)
	if err != nil {
		logging.Fatal().Err(err).Str("subject", subject).Msg("Error sending admin request")
	}

	var reply control.Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		logging.Fatal().Err(err).Msg("Error decoding reply")
	}
	if !reply.OK {
		logging.Fatal().Str("action", reply.Action).Str("error", reply.Error).Msg("Admin command failed")
	}
	logging.Info().Str("action", reply.Action).Msg("Admin command acknowledged")
}
