package recorder

import (
	"bufio"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rtspgrab/rtspgrab/pkg/h264"
)

// writer appends Annex-B payloads to file and counts them
type writer struct {
	file *os.File
	w    io.Writer
	buf  *bufio.Writer

	payloads int
	bytes    int64
	idr      int

	last atomic.Int64
}

// newWriter with size 0 writes directly to file
func newWriter(f *os.File, size int) *writer {
	w := &writer{file: f, w: f}
	if size > 0 {
		w.buf = bufio.NewWriterSize(f, size)
		w.w = w.buf
	}
	w.last.Store(time.Now().UnixNano())
	return w
}

func (w *writer) Write(b []byte) (int, error) {
	n, err := w.w.Write(b)
	if err != nil {
		return n, err
	}

	w.payloads++
	w.bytes += int64(n)
	if h264.NALUType(b) == h264.NALUTypeIFrame {
		w.idr++
	}

	w.last.Store(time.Now().UnixNano())

	return n, nil
}

// Last - time of the last write
func (w *writer) Last() time.Time {
	return time.Unix(0, w.last.Load())
}

func (w *writer) Close() error {
	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			_ = w.file.Close()
			return err
		}
	}
	return w.file.Close()
}
