// Package amqpsink publishes log entries to a RabbitMQ fanout exchange.
package amqpsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"renderhub/internal/logbuf"
)

// DefaultExchange is declared when no exchange is named.
const DefaultExchange = "renderhub.logs"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the JSON body of every published entry.
type Message struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Line    string    `json:"line"`
}

// Writer implements logsink.Writer over one AMQP channel.
type Writer struct {
	conn     *amqp.Connection
	ch       publisher
	exchange string
}

// Dial connects to url and declares exchange as a durable fanout exchange.
func Dial(url, exchange string) (*Writer, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpsink: connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpsink: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpsink: declare exchange %s: %w", exchange, err)
	}
	return &Writer{conn: conn, ch: ch, exchange: exchange}, nil
}

func (w *Writer) Name() string { return "amqp" }

func (w *Writer) Write(ctx context.Context, e logbuf.Entry) error {
	body, err := json.Marshal(Message{
		Time:    e.Time.UTC(),
		Level:   string(e.Level),
		Message: e.Message,
		Line:    e.Line,
	})
	if err != nil {
		return err
	}
	err = w.ch.PublishWithContext(ctx, w.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.Time,
		Type:         "log." + string(e.Level),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqpsink: publish: %w", err)
	}
	return nil
}

// Close closes the connection and with it the channel.
func (w *Writer) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}
