// Package analytics – sinks
//
// This file holds the Sink implementations the dispatcher publishes through:
//   - LogSink writes each event as a structured zerolog line (development).
//   - HTTPSink POSTs each event as JSON to an ingestion endpoint.
//   - KafkaSink produces each event to one topic, keyed by user id.
//
// A sink sees one event at a time from the dispatcher's single worker and
// returns its error; the dispatcher logs, counts and swallows it.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// LogSink writes events to a zerolog logger at info level.
type LogSink struct {
	Logger zerolog.Logger
}

// Publish logs e and never fails.
func (s LogSink) Publish(_ context.Context, e Event) error {
	s.Logger.Info().
		Str("event", e.Name).
		Str("user_id", e.UserID).
		Interface("properties", e.Properties).
		Time("ts", e.At).
		Msg("analytics")
	return nil
}

// Close is a no-op; the logger belongs to the caller.
func (LogSink) Close() error { return nil }

// HTTPSink POSTs each event as JSON to an ingestion endpoint.
type HTTPSink struct {
	// URL is the ingestion endpoint.
	URL string
	// Client sends the requests; its timeout backs up the per-event deadline.
	Client *http.Client
}

// NewHTTPSink returns a sink with a client timeout as a backstop to the
// dispatcher's per-event deadline.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{URL: url, Client: &http.Client{Timeout: 2 * time.Second}}
}

// Publish sends e as one JSON POST bounded by ctx. Any non-2xx status is an
// error; the response body is drained so the connection can be reused.
func (s *HTTPSink) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("ingest returned %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle keep-alive connections.
func (s *HTTPSink) Close() error {
	s.Client.CloseIdleConnections()
	return nil
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to one topic keyed by user id, so a user's
// events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink builds a writer for brokers that hashes message keys onto
// partitions and waits for the leader's ack. It fails without brokers or a
// topic; nothing is dialed until the first Publish.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireOne,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: topic,
	}, nil
}

// Publish produces e as a JSON message keyed by user id, with the event name
// in an "event" header so consumers can filter without decoding the value.
func (s *KafkaSink) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(e.UserID),
		Value: payload,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.Name)},
		},
	})
}

// Close flushes pending batches and closes the writer.
func (s *KafkaSink) Close() error { return s.writer.Close() }
