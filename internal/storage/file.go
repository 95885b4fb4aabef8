package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wafa/pkg/logx"
)

const (
	snapshotName = "snapshot.json"
	journalName  = "journal.jsonl"

	compactEvery = 256
)

// fileBackend keeps the key space in memory and persists it in a directory:
//
//   - snapshot.json  full map, replaced atomically on compaction
//   - journal.jsonl  one line per Batch, appended and fsynced
//
// A batch is one line, so a torn trailing line drops the whole batch. A
// failed append is cut back off the journal before the error is returned;
// if that repair fails too the backend refuses further writes.
type fileBackend struct {
	log logx.Logger

	mu       sync.Mutex
	dir      string
	m        map[string][]byte
	journal  journalFile
	off      int64 // end of the last complete line
	appended int
	broken   error
}

// journalFile is the part of *os.File the backend writes through.
type journalFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

type journalLine struct {
	Ops []journalOp `json:"ops"`
}

type journalOp struct {
	Key   string `json:"k"`
	Value []byte `json:"v,omitempty"`
	Del   bool   `json:"d,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for the file driver")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	m := map[string][]byte{}
	if err := loadSnapshot(filepath.Join(dir, snapshotName), m); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	jpath := filepath.Join(dir, journalName)
	jf, err := os.OpenFile(jpath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	n, good, err := replayJournal(jf, m)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	st, err := jf.Stat()
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	if st.Size() != good {
		log.Warn("discarding torn journal tail",
			logx.String("path", jpath), logx.Int64("kept", good), logx.Int64("size", st.Size()))
		if err := jf.Truncate(good); err != nil {
			_ = jf.Close()
			return nil, err
		}
	}
	if _, err := jf.Seek(good, io.SeekStart); err != nil {
		_ = jf.Close()
		return nil, err
	}

	return &fileBackend{log: log, dir: dir, m: m, journal: jf, off: good, appended: n}, nil
}

func loadSnapshot(path string, out map[string][]byte) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return json.Unmarshal(b, &out)
}

// replayJournal applies complete lines and returns the count and the byte
// offset just past the last good line.
func replayJournal(r io.Reader, m map[string][]byte) (int, int64, error) {
	br := bufio.NewReader(r)
	var (
		n    int
		good int64
	)
	for {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// An unterminated last line was cut mid-write.
			return n, good, nil
		}
		if err != nil {
			return n, good, err
		}
		var jl journalLine
		if err := json.Unmarshal(line, &jl); err != nil {
			return n, good, nil
		}
		for _, op := range jl.Ops {
			if op.Del {
				delete(m, op.Key)
				continue
			}
			m[op.Key] = op.Value
		}
		n++
		good += int64(len(line))
	}
}

func (b *fileBackend) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil, ErrClosed
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := b.m[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (b *fileBackend) Batch(_ context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	jl := journalLine{Ops: make([]journalOp, len(ops))}
	for i, op := range ops {
		if op.Value == nil {
			jl.Ops[i] = journalOp{Key: op.Key, Del: true}
			continue
		}
		jl.Ops[i] = journalOp{Key: op.Key, Value: op.Value}
	}
	line, err := json.Marshal(jl)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return ErrClosed
	}
	if b.broken != nil {
		return fmt.Errorf("journal unusable: %w", b.broken)
	}
	if _, err := b.journal.Write(line); err != nil {
		return b.rollbackLocked(err)
	}
	if err := b.journal.Sync(); err != nil {
		return b.rollbackLocked(err)
	}
	b.off += int64(len(line))
	applyOps(b.m, ops)

	b.appended++
	if b.appended >= compactEvery {
		if err := b.compactLocked(b.m); err != nil {
			b.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

// rollbackLocked cuts a failed append back to the last complete line so the
// next batch does not land behind a torn one.
func (b *fileBackend) rollbackLocked(cause error) error {
	err := b.journal.Truncate(b.off)
	if err == nil {
		_, err = b.journal.Seek(b.off, io.SeekStart)
	}
	if err != nil {
		b.broken = errors.Join(cause, err)
		b.log.Error("journal rollback failed, refusing writes", logx.Err(b.broken))
	}
	return cause
}

func (b *fileBackend) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return ErrClosed
	}
	empty := map[string][]byte{}
	if err := b.compactLocked(empty); err != nil {
		return err
	}
	b.m = empty
	b.broken = nil
	return nil
}

// compactLocked writes m as the snapshot then empties the journal. A crash
// between the two replays the journal over the new snapshot, which is
// idempotent for compaction. A journal that cannot be emptied after the
// snapshot moved would replay stale batches, so the backend stops writing.
func (b *fileBackend) compactLocked(m map[string][]byte) error {
	path := filepath.Join(b.dir, snapshotName)
	tmp := path + ".tmp"
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	err = b.journal.Truncate(0)
	if err == nil {
		_, err = b.journal.Seek(0, io.SeekStart)
	}
	if err != nil {
		b.broken = err
		return err
	}
	b.off = 0
	b.appended = 0
	return nil
}

func (b *fileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil
	}
	err := b.journal.Close()
	b.journal = nil
	return err
}
