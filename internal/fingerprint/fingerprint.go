package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrFingerprint wraps every failure to produce a digest
var ErrFingerprint = errors.New("fingerprint failed")

// Sum reads r to completion and returns its lowercase hex SHA-256 digest.
// If r is an io.Seeker the read position is restored afterwards so the
// same stream can be uploaded. An empty stream yields "" and no error.
func Sum(r io.Reader) (string, error) {
	if r == nil {
		return "", nil
	}

	seeker, replayable := r.(io.Seeker)
	var start int64
	if replayable {
		pos, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return "", fmt.Errorf("%w: mark stream: %v", ErrFingerprint, err)
		}
		start = pos
	}

	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", fmt.Errorf("%w: read stream: %v", ErrFingerprint, err)
	}

	if replayable {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return "", fmt.Errorf("%w: reset stream: %v", ErrFingerprint, err)
		}
	}

	if n == 0 {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Spooled is a one-shot stream copied to a temp file while it was hashed.
type Spooled struct {
	*os.File
	Digest string
	Size   int64
}

// Close closes and removes the spool file.
func (s *Spooled) Close() error {
	name := s.File.Name()
	closeErr := s.File.Close()
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}

// Spool hashes a stream that cannot be replayed by teeing it into a temp
// file under dir. The returned file is positioned at offset 0.
func Spool(r io.Reader, dir string) (*Spooled, error) {
	f, err := os.CreateTemp(dir, "clouddrive-spool-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create spool: %v", ErrFingerprint, err)
	}
	s := &Spooled{File: f}

	h := sha256.New()
	n, err := io.Copy(h, io.TeeReader(r, f))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: spool stream: %v", ErrFingerprint, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: rewind spool: %v", ErrFingerprint, err)
	}

	s.Size = n
	if n > 0 {
		s.Digest = hex.EncodeToString(h.Sum(nil))
	}
	return s, nil
}
