package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRecordsWithoutTopicAlwaysPass(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, nil)
	logger.Info("daemon starting")

	if !strings.Contains(buf.String(), "daemon starting") {
		t.Fatalf("output = %q, want it to contain the untagged message", buf.String())
	}
}

func TestTopicFilteredUnlessEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, nil)
	logger.With("topic", TopicSensor).Debug("read battery sysfs")

	if strings.Contains(buf.String(), "read battery sysfs") {
		t.Fatalf("output = %q, want the sensor-topic message suppressed", buf.String())
	}
}

func TestEnabledTopicPasses(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, []string{TopicSensor})
	logger.With("topic", TopicSensor).Debug("read battery sysfs")

	if !strings.Contains(buf.String(), "read battery sysfs") {
		t.Fatalf("output = %q, want the sensor-topic message present", buf.String())
	}
}

func TestAllTopicEnablesEverything(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, []string{TopicAll})
	logger.With("topic", TopicStore).Debug("upserted daily rollup")

	if !strings.Contains(buf.String(), "upserted daily rollup") {
		t.Fatalf("output = %q, want the store-topic message present under \"all\"", buf.String())
	}
}
