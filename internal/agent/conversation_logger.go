package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/spendchat/internal/config"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ConversationLogConfig controls where conversation events are written.
type ConversationLogConfig = config.ConversationLogConfig

// ConversationLogEvent is one NDJSON line of the conversation audit log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	TurnID     string         `json:"turn_id,omitempty"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat traffic. Log must never block the caller.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan ConversationLogEvent
	wg     sync.WaitGroup

	files    *lru.Cache[string, *os.File]
	closeErr error
	global   *os.File
}

// maxOpenSessionFiles bounds the per-session files held open at once. The
// least recently written file is closed first and reopened on its next event.
const maxOpenSessionFiles = 64

// NewConversationLogger returns a logger writing per-session NDJSON files
// under cfg.Dir and, optionally, a single global file. When neither output
// is enabled it returns a logger that discards everything.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
	}
	files, err := lru.NewWithEvict(maxOpenSessionFiles, l.closeSessionFile)
	if err != nil {
		return nil, fmt.Errorf("create session file cache: %w", err)
	}
	l.files = files

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" && event.ContentRaw != "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"event_type", event.EventType,
		)
	}
}

func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()

	l.files.Purge()
	firstErr := l.closeErr
	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close global conversation log: %w", err)
		}
	}
	return firstErr
}

func (l *fileConversationLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("Failed to encode conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			if err := l.writeSession(event, line); err != nil {
				l.logger.Warn("Failed to write conversation log", "user_id", event.UserID, "error", err)
			}
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("Failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileConversationLogger) writeSession(event ConversationLogEvent, line []byte) error {
	path := filepath.Join(l.cfg.Dir, safePathSegment(event.UserID), safePathSegment(event.SessionID)+".ndjson")
	f, ok := l.files.Get(path)
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		l.files.Add(path, f)
	}
	_, err := f.Write(line)
	return err
}

func (l *fileConversationLogger) closeSessionFile(path string, f *os.File) {
	if err := f.Close(); err != nil {
		l.logger.Warn("Failed to close conversation log", "path", path, "error", err)
		if l.closeErr == nil {
			l.closeErr = fmt.Errorf("close %s: %w", path, err)
		}
	}
}

var (
	unsafeSegmentChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	ansiCSI            = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	ansiOSC            = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	blankRuns          = regexp.MustCompile(`[ \t]{2,}`)
)

func safePathSegment(s string) string {
	s = unsafeSegmentChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

// cleanForReadability strips terminal escapes and control characters so
// the content field can be read with plain tools.
func cleanForReadability(s string) string {
	s = ansiOSC.ReplaceAllString(s, "")
	s = ansiCSI.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = blankRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
