package deploy

import (
	"bytes"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxLastLine = 200

// ZapWriter turns a child process output stream into one log entry per line.
type ZapWriter struct {
	mu     sync.Mutex
	logger *zap.Logger
	level  zapcore.Level
	buf    bytes.Buffer
	last   string
}

func NewZapWriter(logger *zap.Logger, level zapcore.Level, pipe string, fields ...zap.Field) *ZapWriter {
	return &ZapWriter{
		logger: logger.With(zap.String("section", "step"), zap.String("out", pipe)).With(fields...),
		level:  level,
	}
}

func (zw *ZapWriter) Write(p []byte) (n int, err error) {
	zw.mu.Lock()
	defer zw.mu.Unlock()

	n = len(p)
	zw.buf.Write(p)
	for {
		idx := bytes.IndexByte(zw.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(zw.buf.Next(idx + 1))
		zw.emit(strings.TrimRight(line, "\r\n"))
	}
	return
}

// Flush logs any trailing output not terminated by a newline.
func (zw *ZapWriter) Flush() {
	zw.mu.Lock()
	defer zw.mu.Unlock()

	if zw.buf.Len() > 0 {
		zw.emit(strings.TrimRight(zw.buf.String(), "\r\n"))
		zw.buf.Reset()
	}
}

// Last returns the most recent non-empty line written.
func (zw *ZapWriter) Last() string {
	zw.mu.Lock()
	defer zw.mu.Unlock()
	return zw.last
}

func (zw *ZapWriter) emit(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	zw.last = line
	if len(zw.last) > maxLastLine {
		zw.last = zw.last[:maxLastLine] + "…"
	}
	if ce := zw.logger.Check(zw.level, line); ce != nil {
		ce.Write()
	}
}
