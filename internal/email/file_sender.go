package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileSender appends every message to a local file. Enabled with LOG_EMAILS.
type FileSender struct {
	filePath string
	from     string
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewFileSender creates the directory of filePath if needed.
func NewFileSender(filePath, from string, logger *zap.Logger) (*FileSender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for email log file '%s': %w", dir, err)
	}
	return &FileSender{filePath: filePath, from: from, logger: logger}, nil
}

func (s *FileSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open email log file: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "--- Email Logged at %s ---\n", time.Now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "From: %s\nTo: %s\nSubject: %s\n\n", s.from, strings.Join(msg.To, ", "), msg.Subject)
	b.WriteString(msg.Body)
	b.WriteString("\n--- End Logged Email ---\n\n")

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write email to log file: %w", err)
	}
	s.logger.Debug("Email written to log file", zap.Strings("to", msg.To), zap.String("path", s.filePath))
	return nil
}
