package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"cassino/server/logging"
)

var severityNames = map[logging.Severity]string{
	logging.SeverityDebug: "debug",
	logging.SeverityInfo:  "info",
	logging.SeverityWarn:  "warn",
	logging.SeverityError: "error",
}

// ConsoleSink renders events as single log lines for local development.
type ConsoleSink struct {
	logger *log.Logger
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags)}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] severity=%s version=%d actor=%s", event.Type, severityName(event.Severity), event.Version, entityLabel(event.Actor))
	if event.Category != "" {
		fmt.Fprintf(&b, " category=%s", event.Category)
	}
	if len(event.Targets) > 0 {
		labels := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			labels = append(labels, entityLabel(target))
		}
		fmt.Fprintf(&b, " targets=%s", strings.Join(labels, ","))
	}
	if event.ActionID != "" {
		fmt.Fprintf(&b, " action=%s", event.ActionID)
	}
	if event.Payload != nil {
		if data, err := json.Marshal(event.Payload); err == nil {
			fmt.Fprintf(&b, " payload=%s", data)
		} else {
			fmt.Fprintf(&b, " payload=%v", event.Payload)
		}
	}
	s.logger.Print(b.String())
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func severityName(sev logging.Severity) string {
	if name, ok := severityNames[sev]; ok {
		return name
	}
	return "unknown"
}

func entityLabel(ref logging.EntityRef) string {
	switch {
	case ref.ID == "" && ref.Kind == "":
		return "-"
	case ref.ID == "":
		return string(ref.Kind)
	case ref.Kind == "":
		return ref.ID
	default:
		return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
	}
}
