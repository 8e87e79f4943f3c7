package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStoreConnect  AuditEventType = "store.connect"
	AuditEventStoreMigrate  AuditEventType = "store.migrate"
	AuditEventInsurerCreate AuditEventType = "ingest.insurer"
	AuditEventDocCreate     AuditEventType = "ingest.document"
	AuditEventChunkCreate   AuditEventType = "ingest.chunk"
	AuditEventBulkInsert    AuditEventType = "ingest.bulk"
	AuditEventSearch        AuditEventType = "retrieval.search"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	Resource    string         `json:"resource,omitempty"`
	ResourceID  string         `json:"resource_id,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes JSONL audit events for ingestion and retrieval
// operations.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
	// Writer overrides OutputPath when set.
	Writer io.Writer
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch {
	case config.Writer != nil:
		writer = config.Writer
	case config.OutputPath == "stdout" || config.OutputPath == "":
		writer = os.Stdout
	case config.OutputPath == "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogInsert logs a single-record insert outcome.
func (l *AuditLogger) LogInsert(eventType AuditEventType, resource, id string, err error) {
	event := &AuditEvent{
		EventType:  eventType,
		Resource:   resource,
		ResourceID: id,
		Success:    err == nil,
		Message:    fmt.Sprintf("%s insert", resource),
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogStore logs a store lifecycle event (connect, migrate).
func (l *AuditLogger) LogStore(eventType AuditEventType, driver string, err error) {
	event := &AuditEvent{
		EventType: eventType,
		Resource:  "store",
		Success:   err == nil,
		Message:   driver,
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogBulkInsert logs a bulk chunk insert summary.
func (l *AuditLogger) LogBulkInsert(total, inserted, failed int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventBulkInsert,
		Resource:  "document_chunk",
		Success:   failed == 0,
		Duration:  duration,
		Message:   "bulk chunk insert",
		Details: map[string]any{
			"total":    total,
			"inserted": inserted,
			"failed":   failed,
		},
	})
}

// LogSearch logs a similarity search outcome.
func (l *AuditLogger) LogSearch(types []string, limit, results int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType: AuditEventSearch,
		Resource:  "document_chunk",
		Success:   err == nil,
		Duration:  duration,
		Message:   "similarity search",
		Details: map[string]any{
			"insurance_types": types,
			"limit":           limit,
			"results":         results,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// Close closes a file-backed audit logger.
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok && closer != os.Stdout && closer != os.Stderr {
		return closer.Close()
	}
	return nil
}
