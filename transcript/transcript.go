// Package transcript writes finished conversations to disk.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	llama "github.com/gamazeps/encode-llama"
	"github.com/rs/zerolog/log"
)

// FileSink writes each transcript once to Dir/<unix-seconds>.txt. Existing files are never
// overwritten; a session ending in the same second gets a numeric suffix.
type FileSink struct {
	Dir string
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewFileSink creates a FileSink writing to dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir, Now: time.Now}
}

func (s *FileSink) WriteTranscript(ctx context.Context, session llama.Session, turns []llama.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("transcript: create dir: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	stamp := now().Unix()
	data := []byte(llama.RenderTurns(turns))

	for i := 0; ; i++ {
		name := fmt.Sprintf("%d.txt", stamp)
		if i > 0 {
			name = fmt.Sprintf("%d-%d.txt", stamp, i)
		}
		path := filepath.Join(s.Dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("transcript: create %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("transcript: write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("transcript: close %s: %w", path, err)
		}
		log.Debug().Str("session_id", session.ID).Str("path", path).Int("turns", len(turns)).Msg("transcript: written")
		return nil
	}
}
