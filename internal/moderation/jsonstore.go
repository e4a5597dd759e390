package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mkravets/formgate/core/logger"
	"log/slog"
)

type postsFile struct {
	Posts []*Post `json:"posts"`
}

// JSONStore keeps pending submissions in one JSON file. The in-memory
// list is canonical; every mutation rewrites the file through a temp
// file and rename so no crash leaves a torn state.
type JSONStore struct {
	path string

	mu    sync.Mutex
	posts []*Post
}

// NewJSONStore loads prior submissions from path. A missing or broken
// file is logged and treated as empty, never fatal.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("post store dir: %w", err)
	}
	j := &JSONStore{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		logger.Warn(logger.Background(), "moderation", "posts.load.fail",
			slog.String("err", err.Error()),
		)
	default:
		var file postsFile
		if err := json.Unmarshal(raw, &file); err != nil {
			logger.Warn(logger.Background(), "moderation", "posts.load.fail",
				slog.String("err", err.Error()),
			)
		} else {
			j.posts = file.Posts
		}
	}

	logger.Info(logger.Background(), "moderation", "posts.load",
		slog.Int("count", len(j.posts)),
	)
	return j, nil
}

func (j *JSONStore) Add(_ context.Context, post *Post) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.posts = append(j.posts, post)
	return j.dumpLocked()
}

func (j *JSONStore) Get(_ context.Context, id string) (*Post, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, p := range j.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrPostNotFound
}

func (j *JSONStore) Update(_ context.Context, post *Post) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, p := range j.posts {
		if p.ID == post.ID {
			j.posts[i] = post
			return j.dumpLocked()
		}
	}
	return ErrPostNotFound
}

func (j *JSONStore) Remove(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, p := range j.posts {
		if p.ID == id {
			j.posts = append(j.posts[:i], j.posts[i+1:]...)
			return j.dumpLocked()
		}
	}
	return ErrPostNotFound
}

func (j *JSONStore) List(_ context.Context) ([]*Post, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*Post(nil), j.posts...), nil
}

// dumpLocked must be called with the mutex held.
func (j *JSONStore) dumpLocked() error {
	raw, err := json.MarshalIndent(postsFile{Posts: j.posts}, "", "  ")
	if err != nil {
		return fmt.Errorf("posts encode: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("posts write: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("posts replace: %w", err)
	}
	return nil
}
