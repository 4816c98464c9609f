package automatic

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SubjectPrefix is prepended to the run name to form the subject finished
// games are published on.
const SubjectPrefix = "stackbot.autoplay."

type gamePublisher struct {
	nc      *nats.Conn
	subject string
}

func connectPublisher(url, run string) (*gamePublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("stackbot-autoplay"),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats-disconnected")
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("connected-to-nats")
	return &gamePublisher{nc: nc, subject: SubjectPrefix + run}, nil
}

func (p *gamePublisher) publish(rec *GameRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close flushes pending games before closing the connection.
func (p *gamePublisher) Close() error {
	return p.nc.Drain()
}
