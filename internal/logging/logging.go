package logging

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Writer prefixes every line it receives with a UTC timestamp and the
// service name. Partial trailing lines are terminated.
type Writer struct {
	service string
	out     io.Writer
	now     func() time.Time
}

// NewWriter returns a Writer that forwards prefixed lines to out.
func NewWriter(service string, out io.Writer) *Writer {
	return &Writer{service: service, out: out, now: time.Now}
}

// Write stamps every line in p with the same timestamp and writes them to
// the underlying writer in one call. It reports len(p) on success so the
// log package never sees a short write.
func (w *Writer) Write(p []byte) (int, error) {
	prefix := w.now().UTC().Format(time.RFC3339) + " " + w.service + " "
	lines := bytes.Split(p, []byte{'\n'})

	var buf bytes.Buffer
	for i, line := range lines {
		if len(line) == 0 && i == len(lines)-1 {
			break
		}
		buf.WriteString(prefix)
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if buf.Len() == 0 {
		return len(p), nil
	}
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Setup points the standard logger at stdout and <logDir>/<serviceName>.log,
// creating the directory when needed and appending to an existing file.
// The caller owns the returned file and closes it on exit; the standard
// logger keeps writing to it until then.
func Setup(serviceName, logDir string) (*os.File, error) {
	if logDir == "" {
		logDir = ".log"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	logPath := filepath.Join(logDir, serviceName+".log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(NewWriter(serviceName, io.MultiWriter(os.Stdout, file)))
	log.SetFlags(0)
	log.SetPrefix("")
	return file, nil
}
