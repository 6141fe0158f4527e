package events

import (
	"encoding/json"
	"fmt"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"strings"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes every event as JSON on <prefix>.<run id>.<type>.
type NATSSink struct {
	conn   publisher
	prefix string
	nc     *nats.Conn
}

func DialNATS(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("go-autoagent"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	s := newNATSSink(nc, prefix)
	s.nc = nc
	return s, nil
}

func newNATSSink(conn publisher, prefix string) *NATSSink {
	if prefix = strings.Trim(prefix, "."); prefix == "" {
		prefix = "agent"
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

func (s *NATSSink) Subject(e Event) string {
	run := e.RunID
	if run == "" {
		run = "none"
	}
	return fmt.Sprintf("%s.%s.%s", s.prefix, run, e.Type)
}

func (s *NATSSink) Publish(e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("cannot encode event")
		return
	}
	if err := s.conn.Publish(s.Subject(e), body); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("cannot publish event")
	}
}

func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
