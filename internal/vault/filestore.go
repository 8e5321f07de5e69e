package vault

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/models"
)

const recordExt = ".json"

var safeUserID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FileRecordStore keeps one JSON file per user. Each write goes to a temp
// file that is renamed over the old one, so a crash leaves either record intact.
type FileRecordStore struct {
	dir string
}

type fileRecord struct {
	Version   int       `json:"version"`
	UserID    string    `json:"user_id"`
	Fields    [4][]byte `json:"fields"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFileRecordStore creates dir if needed.
func NewFileRecordStore(dir string) (*FileRecordStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
	}
	return &FileRecordStore{dir: dir}, nil
}

func (f *FileRecordStore) path(userID string) (string, error) {
	if !safeUserID.MatchString(userID) {
		return "", &errors.ErrInvalidInput{Field: "user_id", Reason: "must be 1-64 characters of [A-Za-z0-9_-]"}
	}
	return filepath.Join(f.dir, userID+recordExt), nil
}

func (f *FileRecordStore) PutCredentials(ctx context.Context, rec *models.SealedCredentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(rec.UserID)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(fileRecord{
		Version:   1,
		UserID:    rec.UserID,
		Fields:    rec.Fields(),
		UpdatedAt: rec.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return &errors.ErrFileWrite{Path: path, Err: err}
	}
	// atomic.WriteFile keeps the temp file's default mode
	if err := os.Chmod(path, 0o600); err != nil {
		return &errors.ErrFileWrite{Path: path, Err: err}
	}
	return nil
}

func (f *FileRecordStore) GetCredentials(ctx context.Context, userID string) (*models.SealedCredentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.path(userID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, &errors.ErrRecordNotFound{Kind: "credentials", ID: userID}
	}
	if err != nil {
		return nil, &errors.ErrFileRead{Path: path, Err: err}
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &errors.ErrCrypto{Err: fmt.Errorf("decode record: %w", err)}
	}
	return &models.SealedCredentials{
		UserID:         userID,
		Username:       rec.Fields[0],
		Password:       rec.Fields[1],
		AuthToken:      rec.Fields[2],
		TwoFactorToken: rec.Fields[3],
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

func (f *FileRecordStore) DeleteCredentials(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := f.path(userID)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &errors.ErrFileWrite{Path: path, Err: err}
	}
	return true, nil
}

func (f *FileRecordStore) ListCredentialUsers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: f.dir, Err: err}
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		if safeUserID.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var _ RecordStore = (*FileRecordStore)(nil)
