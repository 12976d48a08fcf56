// Package logging builds the daemon's slog.Logger with a topic filter,
// lifted from the teacher's cmd/power-monitor-daemon/main.go topicHandler
// and generalized from that daemon's own topic set to jolt's.
package logging

import (
	"context"
	"io"
	"log/slog"
)

// Topics the daemon logs under verbosely; "all" enables every one.
const (
	TopicSensor   = "sensor"
	TopicStore    = "store"
	TopicIPC      = "ipc"
	TopicSampler  = "sampler"
	TopicAnalyzer = "analyzer"
	TopicWake     = "wake"
	TopicAll      = "all"
)

// topicHandler wraps an slog.Handler and filters records by a "topic"
// attribute. Records without a topic attribute always pass through
// (startup messages, errors); records with a topic only pass if that
// topic is enabled.
type topicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set when WithAttrs included a "topic" key
}

// New builds a logger that writes text-formatted records to w at minLevel,
// with verbose per-topic records filtered by the given topic names.
func New(w io.Writer, minLevel slog.Level, topics []string) *slog.Logger {
	enabled := make(map[string]bool, len(topics))
	for _, t := range topics {
		enabled[t] = true
	}
	handler := &topicHandler{
		inner:  slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel}),
		topics: enabled,
	}
	return slog.New(handler)
}

func (h *topicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.inner.Enabled(context.Background(), level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics[TopicAll] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}
