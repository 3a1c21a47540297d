package event

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger appends events to daily NDJSON files, giving observers an audit
// trail that outlives the in-memory stream.
type Logger struct {
	logDir string
	mu     sync.Mutex
}

type logEntry struct {
	*Event
	LoggedAt string `json:"logged_at"`
}

func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Logger{logDir: logDir}, nil
}

func (l *Logger) Log(e *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(logEntry{Event: e, LoggedAt: time.Now().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	file, err := os.OpenFile(filePath(l.logDir, e.CreatedAt), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event to log: %w", err)
	}
	return nil
}

// Run logs every event received on ch until ctx is done or ch is closed.
func (l *Logger) Run(ctx context.Context, ch <-chan *Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := l.Log(e); err != nil {
				slog.ErrorContext(ctx, "failed to log event", "event_id", e.ID, "error", err)
			}
		}
	}
}

func filePath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("events_%s.ndjson", t.UTC().Format("2006-01-02")))
}

// ReadDay returns the events logged for the UTC day containing date,
// optionally restricted to one task.
func ReadDay(logDir string, date time.Time, taskID string) ([]*Event, error) {
	file, err := os.Open(filePath(logDir, date))
	if err != nil {
		if os.IsNotExist(err) {
			return []*Event{}, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	events := []*Event{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Event == nil {
			slog.Warn("skipping malformed event log line", "file", file.Name(), "error", err)
			continue
		}
		if taskID != "" && entry.TaskID != taskID {
			continue
		}
		events = append(events, entry.Event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return events, nil
}
