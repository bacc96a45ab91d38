// Package staging buffers locally selected files until a send commits them,
// and tracks the ephemeral preview references handed to provisional messages.
package staging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/models"
)

// Staging errors.
var (
	ErrTooLarge     = errors.New("file exceeds the attachment size limit")
	ErrTooMany      = errors.New("too many staged attachments")
	ErrOutOfRange   = errors.New("staged attachment index out of range")
	ErrInvalidFile  = errors.New("invalid file")
	ErrInvalidOwner = errors.New("preview owner must be a provisional message id")
)

// previewPrefix is the full prefix of every reference minted here.
const previewPrefix = models.PreviewScheme + "local/"

// Config contains staging limits.
type Config struct {
	// MaxSize is the largest accepted file in bytes. Zero disables the check.
	// Default: 25MB
	MaxSize int64

	// MaxCount is the most files that may be staged at once.
	// Default: 10
	MaxCount int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:  25 * 1000 * 1000,
		MaxCount: 10,
	}
}

// Committed is a staged file bound to a provisional message.
type Committed struct {
	File       File
	Attachment models.Attachment
}

type preview struct {
	owner models.MessageID
	file  File
}

// Area is the ordered collection of staged files, independent of any thread.
type Area struct {
	config Config
	logger zerolog.Logger

	mu       sync.Mutex
	files    []File
	previews map[string]preview
}

// NewArea creates an empty staging area.
func NewArea(config Config) *Area {
	defaults := DefaultConfig()
	if config.MaxSize < 0 {
		config.MaxSize = defaults.MaxSize
	}
	if config.MaxCount <= 0 {
		config.MaxCount = defaults.MaxCount
	}
	return &Area{
		config:   config,
		logger:   logging.Component("staging"),
		previews: make(map[string]preview),
	}
}

// Stage appends a file.
func (a *Area) Stage(file File) error {
	if file.Path == "" || file.Name == "" {
		return ErrInvalidFile
	}
	if a.config.MaxSize > 0 && file.Size > a.config.MaxSize {
		return fmt.Errorf("%w: %s is %s, limit %s", ErrTooLarge, file.Name,
			humanize.Bytes(uint64(file.Size)), humanize.Bytes(uint64(a.config.MaxSize)))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.files) >= a.config.MaxCount {
		return fmt.Errorf("%w: limit %d", ErrTooMany, a.config.MaxCount)
	}
	a.files = append(a.files, file)
	return nil
}

// Unstage removes the file at index.
func (a *Area) Unstage(index int) (File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.files) {
		return File{}, ErrOutOfRange
	}
	removed := a.files[index]
	next := make([]File, 0, len(a.files)-1)
	next = append(next, a.files[:index]...)
	next = append(next, a.files[index+1:]...)
	a.files = next
	return removed, nil
}

// List returns a copy of the staged files in order.
func (a *Area) List() []File {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]File, len(a.files))
	copy(out, a.files)
	return out
}

// Len returns the number of staged files.
func (a *Area) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.files)
}

// Commit hands every staged file to owner and clears the area. Each file
// gets an ephemeral preview reference that stays live until Release(owner).
func (a *Area) Commit(owner models.MessageID) ([]Committed, error) {
	if !owner.IsLocal() {
		return nil, ErrInvalidOwner
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	files := a.files
	a.files = nil
	if len(files) == 0 {
		return nil, nil
	}

	out := make([]Committed, 0, len(files))
	for _, file := range files {
		ref := previewPrefix + uuid.NewString()
		a.previews[ref] = preview{owner: owner, file: file}
		out = append(out, Committed{
			File: file,
			Attachment: models.Attachment{
				URL:  ref,
				Kind: models.AttachmentKindFromMIME(file.MIMEType),
				Name: file.Name,
			},
		})
	}

	a.logger.Debug().
		Str("owner", owner.String()).
		Int("files", len(out)).
		Msg("staged attachments committed")
	return out, nil
}

// Release invalidates every preview reference owned by owner. It returns the
// number of references released.
func (a *Area) Release(owner models.MessageID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	released := 0
	for ref, p := range a.previews {
		if p.owner == owner {
			delete(a.previews, ref)
			released++
		}
	}
	return released
}

// IsLive reports whether ref is a preview reference whose owner is still provisional.
func (a *Area) IsLive(ref string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.previews[ref]
	return ok
}

// Resolve returns the local file behind a live preview reference.
func (a *Area) Resolve(ref string) (File, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.previews[ref]
	return p.file, ok
}

// LivePreviews returns the number of live preview references.
func (a *Area) LivePreviews() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.previews)
}
