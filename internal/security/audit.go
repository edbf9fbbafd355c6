package security

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hyperos-labs/agent-core/internal/domain"
)

const (
	// auditTaskTruncate caps how much of the original task text an entry
	// keeps.
	auditTaskTruncate = 100
	// auditValueTruncate caps individual parameter values.
	auditValueTruncate = 100
	// hashHexLength is the retained prefix of the sha256 digest.
	hashHexLength = 16
)

// redactedKeys is the denylist of parameter-name substrings whose values are
// replaced before persistence and before hashing.
var redactedKeys = []string{"password", "key", "token", "secret", "credential"}

// AuditEntry is one hash-chained record of an executed (or blocked) action.
// Once appended, tampering with any entry invalidates every hash after it.
type AuditEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	TaskID    string            `json:"task_id"`
	Action    domain.ActionKind `json:"action"`
	Params    map[string]any    `json:"parameters,omitempty"`
	Task      string            `json:"task,omitempty"`
	Result    string            `json:"result,omitempty"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
}

// AuditLog appends hash-chained entries to date-partitioned JSONL files.
// The chain head is process-wide; appends are serialized by a mutex.
type AuditLog struct {
	dir string

	mu       sync.Mutex
	lastHash string
	now      func() time.Time
}

// NewAuditLog opens (creating if needed) the audit directory and resumes the
// hash chain from the last entry of today's partition.
func NewAuditLog(dir string) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &AuditLog{dir: dir, now: time.Now}

	entries, err := l.readFile(l.currentFile())
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		l.lastHash = entries[len(entries)-1].Hash
	}
	return l, nil
}

// Append records an action in the audit trail. Sensitive parameter values
// are redacted and long values truncated before the entry is hashed, never
// after.
func (l *AuditLog) Append(taskID string, action domain.ActionKind, params map[string]any, taskText, result string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	taskText = truncateRunes(taskText, auditTaskTruncate)

	entry := AuditEntry{
		Timestamp: l.now(),
		TaskID:    taskID,
		Action:    action,
		Params:    sanitizeParams(params),
		Task:      taskText,
		Result:    result,
		PrevHash:  l.lastHash,
	}
	entry.Hash = hashEntry(entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	f, err := os.OpenFile(l.currentFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	l.lastHash = entry.Hash
	return nil
}

// Recent returns the last n entries of today's partition in insertion order.
func (l *AuditLog) Recent(n int) ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readFile(l.currentFile())
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Verify walks today's partition recomputing every hash. It returns the
// index of the first entry whose hash or back-link does not check out, or
// -1 when the chain is intact.
func (l *AuditLog) Verify() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readFile(l.currentFile())
	if err != nil {
		return -1, err
	}

	prev := ""
	for i, e := range entries {
		if i > 0 {
			prev = entries[i-1].Hash
		}
		if e.PrevHash != prev {
			return i, nil
		}
		if hashEntry(e) != e.Hash {
			return i, nil
		}
	}
	return -1, nil
}

func (l *AuditLog) currentFile() string {
	return filepath.Join(l.dir, "audit_"+l.now().Format("20060102")+".jsonl")
}

func (l *AuditLog) readFile(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("parse audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}
	return entries, nil
}

// hashEntry digests the canonical JSON form of an entry with PrevHash set
// and Hash empty. Canonical means sorted keys, which encoding/json provides
// for maps.
func hashEntry(e AuditEntry) string {
	canonical := map[string]any{
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"task_id":   e.TaskID,
		"action":    string(e.Action),
		"params":    e.Params,
		"task":      e.Task,
		"result":    e.Result,
		"prev_hash": e.PrevHash,
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:hashHexLength]
}

// sanitizeParams redacts denylisted keys and truncates oversized string
// values. The original map is never mutated.
func sanitizeParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	safe := make(map[string]any, len(params))
	for k, v := range params {
		if isRedactedKey(k) {
			safe[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && utf8.RuneCountInString(s) > auditValueTruncate {
			safe[k] = truncateRunes(s, auditValueTruncate) + "...[TRUNCATED]"
			continue
		}
		safe[k] = v
	}
	return safe
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range redactedKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
