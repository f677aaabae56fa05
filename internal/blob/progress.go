package blob

import (
	"io"
	"math"
)

// Percent converts a byte count into round(transferred/total*100), clamped to [0,100].
func Percent(transferred, total int64) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(transferred) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// progressReader reports bytes as they are read from the wrapped reader.
type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}
	return n, err
}

// progressSink is handed to SDKs that report progress by reading from an io.Reader
// (minio's PutObjectOptions.Progress). It never yields data, only counts it.
type progressSink struct {
	total int64
	done  int64
	fn    ProgressFunc
}

func (p *progressSink) Read(b []byte) (int, error) {
	p.done += int64(len(b))
	p.fn(p.done, p.total)
	return len(b), nil
}
