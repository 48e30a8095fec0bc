package storage

import "io"

// progressStep is the minimum advance, in percentage points, between two
// callbacks.
const progressStep = 1.0

// ProgressReader counts bytes as they are read and reports coalesced
// percentages. It always reports 100 exactly once when the stream is
// fully consumed.
type ProgressReader struct {
	r          io.Reader
	total      int64
	read       int64
	lastReport float64
	finished   bool
	onProgress ProgressFunc
}

func NewProgressReader(r io.Reader, total int64, onProgress ProgressFunc) *ProgressReader {
	return &ProgressReader{r: r, total: total, onProgress: onProgress}
}

func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)

	if p.onProgress == nil || p.finished {
		return n, err
	}

	if err == io.EOF || (p.total > 0 && p.read >= p.total) {
		p.finished = true
		p.onProgress(100)
		return n, err
	}

	if p.total > 0 && n > 0 {
		percent := float64(p.read) * 100 / float64(p.total)
		if percent-p.lastReport >= progressStep {
			p.lastReport = percent
			p.onProgress(percent)
		}
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (p *ProgressReader) BytesRead() int64 {
	return p.read
}
