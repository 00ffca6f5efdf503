package logging

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// LineWriter prefixes every complete line with a sequence number and a
// timestamp. Partial lines are held until the newline arrives or Close.
type LineWriter struct {
	target io.Writer
	seq    uint64
	buf    bytes.Buffer
	now    func() time.Time
	mu     sync.Mutex
}

func NewLineWriter(target io.Writer) *LineWriter {
	return &LineWriter{target: target, now: time.Now}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.buf.Next(i + 1)
		if err := w.writeLine(bytes.TrimRight(line, "\r\n")); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial line
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}
	line := bytes.Clone(w.buf.Bytes())
	w.buf.Reset()
	return w.writeLine(line)
}

func (w *LineWriter) writeLine(line []byte) error {
	w.seq++
	_, err := fmt.Fprintf(w.target, "line=%d time=%s %s\n", w.seq, w.now().Format(time.RFC3339), line)
	return err
}
