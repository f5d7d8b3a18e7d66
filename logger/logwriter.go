package logger

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

// LogBufferWriter is an io.Writer that writes to the log buffer.
// It splits lines in the "date time LEVEL [name] message" format the logger
// emits; lines without a name are attributed to "system".
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var (
	lineRegex   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) ([A-Z]+) (?:\[([^\]]+)\] )?(.*)$`)
	nodeIDRegex = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)
)

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next write
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}
		lw.buffer.Append(parseLine(line))
	}

	return len(p), nil
}

func parseLine(line string) LogEntry {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		NodeID:    "system",
		Message:   line,
	}

	if m := lineRegex.FindStringSubmatch(line); m != nil {
		if ts, err := time.ParseInLocation(TimeLayout, m[1], time.Local); err == nil {
			entry.Timestamp = ts
		}
		entry.Level = m[2]
		if m[3] != "" {
			entry.NodeID = m[3]
		}
		entry.Message = m[4]
		return entry
	}

	if m := nodeIDRegex.FindStringSubmatch(line); m != nil {
		entry.NodeID = m[1]
		entry.Message = m[2]
	}
	return entry
}
