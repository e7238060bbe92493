package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "wcnotice/pkg/logx"
)

// fileStore appends one JSON object per line to <prefix>.triggers.jsonl.
//
// The newest maxRecords records are also held in memory; reads never touch
// the file. Once the file holds twice that many lines it is rewritten with
// only the retained tail.
type fileStore struct {
	log        logx.Logger
	path       string
	maxRecords int

	mu     sync.Mutex
	f      *os.File
	tail   []TriggerRecord // oldest first, len <= maxRecords
	lines  int             // lines in the file, torn ones included
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path = filepath.Join(dir, base+".triggers.jsonl")

	s := &fileStore{log: log, path: path, maxRecords: cfg.MaxRecords}
	if s.maxRecords <= 0 {
		s.maxRecords = defaultMaxRecords
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	if err := s.reopen(); err != nil {
		return nil, err
	}
	if s.lines >= 2*s.maxRecords {
		if err := s.compact(); err != nil {
			log.Warn("trigger history compaction failed", logx.Err(err))
		}
	}
	log.Debug("trigger history opened",
		logx.String("path", path),
		logx.Int("records", len(s.tail)),
		logx.Int("max_records", s.maxRecords),
	)
	return s, nil
}

// load reads the existing file into the tail. Malformed lines (e.g. a torn
// final write) are counted but skipped.
func (s *fileStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		s.lines++
		var r TriggerRecord
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		s.push(r)
	}
	return sc.Err()
}

// reopen opens the append handle. A file that does not end in a newline gets
// one first so the next record starts on its own line.
func (s *fileStore) reopen() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	if st, err := f.Stat(); err == nil && st.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, st.Size()-1); err == nil && last[0] != '\n' {
			_, _ = f.Write([]byte{'\n'})
		}
	}
	s.f = f
	return nil
}

func (s *fileStore) push(r TriggerRecord) {
	if len(s.tail) == s.maxRecords {
		copy(s.tail, s.tail[1:])
		s.tail = s.tail[:len(s.tail)-1]
	}
	s.tail = append(s.tail, r)
}

// compact rewrites the file with only the retained tail. Callers hold mu.
func (s *fileStore) compact() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, r := range s.tail {
		if err := enc.Encode(r); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		if rerr := s.reopen(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	s.lines = len(s.tail)
	s.log.Debug("trigger history compacted", logx.Int("records", s.lines))
	return s.reopen()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendTrigger(ctx context.Context, r TriggerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.f == nil {
		return errors.New("trigger file closed")
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.push(r)
	s.lines++
	if s.lines >= 2*s.maxRecords {
		if err := s.compact(); err != nil {
			s.log.Warn("trigger history compaction failed", logx.Err(err))
		}
	}
	return nil
}

// RecentTriggers serves up to n records, newest first, from memory.
func (s *fileStore) RecentTriggers(ctx context.Context, n int) ([]TriggerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.tail) {
		n = len(s.tail)
	}
	out := make([]TriggerRecord, 0, n)
	for i := len(s.tail) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.tail[i])
	}
	return out, nil
}
