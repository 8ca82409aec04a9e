package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditFileName is the audit log written under the data directory.
const AuditFileName = "audit.jsonl"

// AuditEntry records a single MCP tool invocation.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends audit entries to a JSONL file. It is safe for concurrent
// use, and a nil AuditLogger is a no-op.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewAuditLogger opens dir/audit.jsonl for appending, creating dir if needed.
func NewAuditLogger(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	path := filepath.Join(dir, AuditFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	return &AuditLogger{file: f, path: path}, nil
}

// Path returns the audit log location.
func (a *AuditLogger) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Log appends entry as one JSON line. Entries that fail to encode are skipped.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the log file. Later calls to Log are dropped.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// auditParams lists the argument keys whose values are recorded verbatim.
// Anything else is counted but not logged.
var auditParams = map[string]bool{
	"signal": true,
	"value":  true,
	"limit":  true,
	"run_id": true,
	"since":  true,
}

// sanitizeToolParams reduces tool arguments to the audited subset. Zero values
// are omitted so optional arguments do not clutter the log.
func sanitizeToolParams(params map[string]interface{}) map[string]string {
	if params == nil {
		return nil
	}

	result := make(map[string]string, len(params)+1)
	for key, val := range params {
		if !auditParams[key] {
			continue
		}
		switch v := val.(type) {
		case string:
			if v == "" {
				continue
			}
		case int:
			if v == 0 {
				continue
			}
		}
		result[key] = fmt.Sprintf("%v", val)
	}
	result["_param_count"] = fmt.Sprintf("%d", len(params))

	return result
}

// auditTool records a tool invocation that began at start and ended with err.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
