package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"wafa/pkg/logx"
)

func openFileBackend(t *testing.T, dir string) Backend {
	t.Helper()
	b, err := openFile(Config{Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	return b
}

func TestFileBackendReplaysJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	if err := b.Batch(ctx, []Op{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if err := b.Batch(ctx, []Op{{Key: "a"}}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	_ = b.Close()

	b = openFileBackend(t, dir)
	defer b.Close()
	got, err := b.GetMany(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if _, ok := got["a"]; ok || string(got["b"]) != "2" {
		t.Fatalf("replayed state = %v", got)
	}
}

func TestFileBackendDropsTornBatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	if err := b.Batch(ctx, []Op{{Key: "kept", Value: []byte("x")}}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	_ = b.Close()

	// Simulate a crash halfway through writing a two-op batch.
	f, err := os.OpenFile(filepath.Join(dir, journalName), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := f.WriteString(`{"ops":[{"k":"torn1","v":"eQ=="},{"k":"tor`); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	b = openFileBackend(t, dir)
	got, err := b.GetMany(ctx, []string{"kept", "torn1"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if _, ok := got["torn1"]; ok {
		t.Fatalf("partial batch was applied: %v", got)
	}
	if string(got["kept"]) != "x" {
		t.Fatalf("complete batch lost: %v", got)
	}

	// Appends after recovery must land on a clean line.
	if err := b.Batch(ctx, []Op{{Key: "after", Value: []byte("y")}}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	_ = b.Close()

	b = openFileBackend(t, dir)
	defer b.Close()
	got, _ = b.GetMany(ctx, []string{"kept", "after"})
	if len(got) != 2 {
		t.Fatalf("state after recovery = %v", got)
	}
}

func TestFileBackendCompacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	for i := 0; i < compactEvery+3; i++ {
		if err := b.Batch(ctx, []Op{{Key: "k", Value: []byte{byte(i)}}}); err != nil {
			t.Fatalf("Batch %d: %v", i, err)
		}
	}
	_ = b.Close()

	st, err := os.Stat(filepath.Join(dir, snapshotName))
	if err != nil || st.Size() == 0 {
		t.Fatalf("snapshot missing after compaction: %v", err)
	}

	b = openFileBackend(t, dir)
	defer b.Close()
	got, _ := b.GetMany(ctx, []string{"k"})
	if len(got["k"]) != 1 || got["k"][0] != byte((compactEvery+2)%256) {
		t.Fatalf("k = %v", got["k"])
	}
}

func TestFileBackendClearSurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	_ = b.Batch(ctx, []Op{{Key: CredsKey, Value: []byte(`{}`)}})
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	_ = b.Close()

	b = openFileBackend(t, dir)
	defer b.Close()
	got, _ := b.GetMany(ctx, []string{CredsKey})
	if len(got) != 0 {
		t.Fatalf("credentials survived Clear: %v", got)
	}
}

// shortJournal writes only the first keep bytes of each append and then
// fails, like a full disk.
type shortJournal struct {
	*os.File
	keep          int
	truncateFails bool
}

func (j *shortJournal) Write(p []byte) (int, error) {
	n, _ := j.File.Write(p[:min(j.keep, len(p))])
	return n, errors.New("file too large")
}

func (j *shortJournal) Truncate(size int64) error {
	if j.truncateFails {
		return errors.New("read-only file system")
	}
	return j.File.Truncate(size)
}

func TestFileBackendRollsBackFailedAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	if err := b.Batch(ctx, []Op{{Key: "kept", Value: []byte("x")}}); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	fb := b.(*fileBackend)
	jf := fb.journal.(*os.File)
	fb.journal = &shortJournal{File: jf, keep: 10}
	if err := b.Batch(ctx, []Op{{Key: "lost", Value: []byte("a")}}); err == nil {
		t.Fatalf("Batch over a failing journal returned nil")
	}
	got, _ := b.GetMany(ctx, []string{"lost"})
	if len(got) != 0 {
		t.Fatalf("failed batch applied in memory: %v", got)
	}

	fb.journal = jf
	if err := b.Batch(ctx, []Op{{Key: "after", Value: []byte("b")}}); err != nil {
		t.Fatalf("Batch after rollback: %v", err)
	}
	_ = b.Close()

	b = openFileBackend(t, dir)
	defer b.Close()
	got, err := b.GetMany(ctx, []string{"kept", "lost", "after"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if string(got["kept"]) != "x" || string(got["after"]) != "b" {
		t.Fatalf("acknowledged batches lost on reopen: %v", got)
	}
	if _, ok := got["lost"]; ok {
		t.Fatalf("failed batch replayed: %v", got)
	}
}

func TestFileBackendRefusesWritesAfterFailedRollback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	defer b.Close()

	fb := b.(*fileBackend)
	fb.journal = &shortJournal{File: fb.journal.(*os.File), keep: 10, truncateFails: true}
	if err := b.Batch(ctx, []Op{{Key: "a", Value: []byte("1")}}); err == nil {
		t.Fatalf("Batch over a failing journal returned nil")
	}
	if err := b.Batch(ctx, []Op{{Key: "b", Value: []byte("2")}}); err == nil {
		t.Fatalf("Batch succeeded behind an unrepaired torn line")
	}
	got, _ := b.GetMany(ctx, []string{"a", "b"})
	if len(got) != 0 {
		t.Fatalf("refused batches applied in memory: %v", got)
	}
}

func TestFileBackendClearKeepsStateWhenCompactionFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	if err := b.Batch(ctx, []Op{{Key: CredsKey, Value: []byte(`{"registered":true}`)}}); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	// A directory where the snapshot temp file goes makes compaction fail.
	blocker := filepath.Join(dir, snapshotName+".tmp")
	if err := os.Mkdir(blocker, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := b.Clear(ctx); err == nil {
		t.Fatalf("Clear returned nil with compaction blocked")
	}
	got, _ := b.GetMany(ctx, []string{CredsKey})
	if len(got) != 1 {
		t.Fatalf("memory cleared although files were not: %v", got)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	_ = b.Close()

	b = openFileBackend(t, dir)
	defer b.Close()
	got, _ = b.GetMany(ctx, []string{CredsKey})
	if len(got) != 0 {
		t.Fatalf("credentials survived Clear: %v", got)
	}
}
