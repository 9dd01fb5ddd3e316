package trace

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
)

// Archive is the persisted form of one trace: the trace itself plus its
// spans and attached generations.
type Archive struct {
	Trace       *Trace        `json:"trace"`
	Spans       []*Span       `json:"spans"`
	Generations []*Generation `json:"generations"`
}

// Repository persists trace archives. Implementations can use any storage
// backend.
type Repository interface {
	Save(ctx context.Context, archive *Archive) error
	Load(ctx context.Context, traceID string) (*Archive, error)
}

// FileRepository persists trace archives as JSON files, one per trace id.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a FileRepository writing to the given directory.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

// Save writes the archive as JSON to {dir}/{trace_id}.json.
func (r *FileRepository) Save(_ context.Context, archive *Archive) error {
	if archive == nil || archive.Trace == nil {
		return goerr.New("archive trace is required")
	}

	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return goerr.Wrap(err, "failed to create trace directory", goerr.V("dir", r.dir))
	}

	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal trace archive",
			goerr.V("trace_id", archive.Trace.ID))
	}

	filePath := filepath.Join(r.dir, archive.Trace.ID+".json")
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return goerr.Wrap(err, "failed to write trace file", goerr.V("path", filePath))
	}

	return nil
}

// Load reads the archive for a trace id. Unknown ids return ErrNotFound.
func (r *FileRepository) Load(_ context.Context, traceID string) (*Archive, error) {
	filePath := filepath.Join(r.dir, traceID+".json")

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrNotFound, "trace archive", goerr.V("trace_id", traceID))
		}
		return nil, goerr.Wrap(err, "failed to read trace file", goerr.V("path", filePath))
	}

	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal trace archive", goerr.V("path", filePath))
	}

	return &archive, nil
}
