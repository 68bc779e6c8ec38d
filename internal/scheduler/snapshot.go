package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	appLog "studyverse/internal/log"
)

// SnapshotJob builds a job that renders a file and replaces path with it
// atomically, so readers never see a half-written snapshot.
func SnapshotJob(name, spec, path string, render func(ctx context.Context) ([]byte, error)) Job {
	return Job{
		Name: name,
		Spec: spec,
		Run: func(ctx context.Context) error {
			if path == "" {
				return errors.New("snapshot path is empty")
			}
			data, err := render(ctx)
			if err != nil {
				return err
			}
			if err := replaceFile(path, data); err != nil {
				return err
			}
			appLog.Info("snapshot written", "job", name, "path", path, "bytes", len(data))
			return nil
		},
	}
}

func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return err
	}
	return os.Rename(name, path)
}
