package bus

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/echotrail-io/echotrail/internal/config"
	"github.com/echotrail-io/echotrail/internal/protocol"
)

// Client wraps the NATS connection used to mirror run events for
// external observers. Delivery is best effort: a publish failure is
// logged and never fails the run.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("echotrail"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishEvent mirrors one run event to game.events.<run_id>.
func (c *Client) PublishEvent(runID string, ev protocol.Event) {
	if c == nil {
		return
	}
	data, err := protocol.Encode(ev)
	if err != nil {
		c.log.Warn("failed to encode event for bus", slog.String("error", err.Error()))
		return
	}
	subject := fmt.Sprintf("%s.%s", protocol.SubjectGameEventsPrefix, runID)
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish run event",
			slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
