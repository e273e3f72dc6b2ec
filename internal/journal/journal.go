// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package journal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/logging"
)

// ConsumeMode selects what MarkConsumed does with a drained file.
type ConsumeMode string

const (
	ConsumeRename ConsumeMode = "rename"
	ConsumeDelete ConsumeMode = "delete"
)

const (
	// ConsumedSuffix marks files the replayer must skip.
	ConsumedSuffix = ".consumed"

	dayLayout = "2006-01-02"

	// maxLineSize bounds a single journal line.
	maxLineSize = 16 << 20
)

var (
	ErrJournalClosed = errors.New("journal: closed")
	ErrActiveFile    = errors.New("journal: file is active")
	ErrNotJournal    = errors.New("journal: not a journal file")
)

var fileNameRe = regexp.MustCompile(`^([a-z][a-z0-9_]*)-(\d{4}-\d{2}-\d{2})(?:\.(\d+))?\.log$`)

// Config configures a Journal.
type Config struct {
	// Dir is the journal directory. Required.
	Dir string

	// ConsumeMode defaults to ConsumeRename.
	ConsumeMode ConsumeMode

	// Now overrides the clock used for date partitioning (tests).
	Now func() time.Time
}

// File identifies one journal segment on disk.
type File struct {
	Name    string
	Path    string
	Channel string
	Day     string
	Seq     int
	Size    int64
}

// Stats is a snapshot of journal counters.
type Stats struct {
	ActiveSegments int   `json:"active_segments"`
	LinesPersisted int64 `json:"lines_persisted"`
	FilesConsumed  int64 `json:"files_consumed"`
}

// segmentFile is the part of *os.File a segment writes through.
type segmentFile interface {
	Write(b []byte) (int, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

// openSegmentFile creates a new segment file. Tests replace it to inject
// write failures.
var openSegmentFile = func(path string) (segmentFile, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o600)
}

type segment struct {
	f    segmentFile
	path string
	day  string
	size int64 // bytes acknowledged by a successful Persist
}

// Journal is a date-partitioned NDJSON store of undelivered records.
type Journal struct {
	cfg Config

	mu      sync.Mutex
	active  map[string]*segment // by channel
	lastSeq map[string]int      // by channel|day, highest sequence seen on disk
	closed  bool

	linesPersisted atomic.Int64
	filesConsumed  atomic.Int64
}

// Open prepares the journal directory and indexes existing segments so new
// segments never reuse a name already on disk.
func Open(cfg Config) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal: dir is required")
	}
	if cfg.ConsumeMode == "" {
		cfg.ConsumeMode = ConsumeRename
	}
	if cfg.ConsumeMode != ConsumeRename && cfg.ConsumeMode != ConsumeDelete {
		return nil, fmt.Errorf("journal: unknown consume mode %q", cfg.ConsumeMode)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	j := &Journal{
		cfg:     cfg,
		active:  make(map[string]*segment),
		lastSeq: make(map[string]int),
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}
	for _, de := range entries {
		name := strings.TrimSuffix(de.Name(), ConsumedSuffix)
		f, err := parseName(name)
		if err != nil {
			continue
		}
		key := seqKey(f.Channel, f.Day)
		if prev, ok := j.lastSeq[key]; !ok || f.Seq > prev {
			j.lastSeq[key] = f.Seq
		}
	}

	logging.Info().
		Str("dir", cfg.Dir).
		Str("consume_mode", string(cfg.ConsumeMode)).
		Msg("Audit journal opened")
	return j, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.cfg.Dir
}

func seqKey(channel, day string) string {
	return channel + "|" + day
}

func segmentName(channel, day string, seq int) string {
	if seq == 0 {
		return fmt.Sprintf("%s-%s.log", channel, day)
	}
	return fmt.Sprintf("%s-%s.%d.log", channel, day, seq)
}

func parseName(name string) (File, error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return File{}, ErrNotJournal
	}
	if _, err := time.Parse(dayLayout, m[2]); err != nil {
		return File{}, ErrNotJournal
	}
	seq := 0
	if m[3] != "" {
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return File{}, ErrNotJournal
		}
		seq = n
	}
	return File{Name: name, Channel: m[1], Day: m[2], Seq: seq}, nil
}

// Persist appends one line per record to today's active segment for the
// record's channel and fsyncs before returning.
func (j *Journal) Persist(records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	byChannel := make(map[string]*bytes.Buffer)
	order := make([]string, 0, 2)

	for i := range records {
		line, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("marshal journal record: %w", err)
		}
		ch := records[i].Channel()
		buf, ok := byChannel[ch]
		if !ok {
			buf = &bytes.Buffer{}
			byChannel[ch] = buf
			order = append(order, ch)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}

	day := j.cfg.Now().UTC().Format(dayLayout)
	for _, ch := range order {
		seg, err := j.activeSegment(ch, day)
		if err != nil {
			RecordPersistFailure()
			return err
		}
		buf := byChannel[ch].Bytes()
		if _, err := seg.f.Write(buf); err != nil {
			RecordPersistFailure()
			j.retireLocked(ch, seg)
			return fmt.Errorf("append to %s: %w", seg.path, err)
		}
		if err := seg.f.Sync(); err != nil {
			RecordPersistFailure()
			j.retireLocked(ch, seg)
			return fmt.Errorf("fsync %s: %w", seg.path, err)
		}
		seg.size += int64(len(buf))
	}

	j.linesPersisted.Add(int64(len(records)))
	RecordPersist(len(records), time.Since(start).Seconds())
	return nil
}

// retireLocked drops a segment whose last write failed. The file is cut
// back to its acknowledged length so a torn line cannot prefix the next
// record, and later writes go to a fresh segment. Must be called with mu held.
func (j *Journal) retireLocked(channel string, seg *segment) {
	if err := seg.f.Truncate(seg.size); err != nil {
		logging.Error().Err(err).Str("path", seg.path).Int64("size", seg.size).
			Msg("Failed to truncate journal segment after failed write, tail may hold a partial line")
	}
	if err := seg.f.Close(); err != nil {
		logging.Warn().Err(err).Str("path", seg.path).Msg("Failed to close retired journal segment")
	}
	delete(j.active, channel)
	SetActiveSegments(len(j.active))
	logging.Warn().Str("path", seg.path).Msg("Retired journal segment after failed write")
}

// activeSegment returns the open segment for channel on day, rolling over
// when the day changed. Must be called with mu held.
func (j *Journal) activeSegment(channel, day string) (*segment, error) {
	if seg, ok := j.active[channel]; ok {
		if seg.day == day {
			return seg, nil
		}
		if err := closeSegment(seg); err != nil {
			logging.Warn().Err(err).Str("path", seg.path).Msg("Failed to close rolled-over journal segment")
		}
		delete(j.active, channel)
	}

	key := seqKey(channel, day)
	seq := 0
	if last, ok := j.lastSeq[key]; ok {
		seq = last + 1
	}

	name := segmentName(channel, day, seq)
	path := filepath.Join(j.cfg.Dir, name)
	f, err := openSegmentFile(path)
	if err != nil {
		return nil, fmt.Errorf("open journal segment %s: %w", name, err)
	}
	if err := syncDir(j.cfg.Dir); err != nil {
		logging.Warn().Err(err).Str("dir", j.cfg.Dir).Msg("Failed to fsync journal directory")
	}

	j.lastSeq[key] = seq
	seg := &segment{f: f, path: path, day: day}
	j.active[channel] = seg
	SetActiveSegments(len(j.active))

	logging.Debug().Str("file", name).Msg("Opened journal segment")
	return seg, nil
}

// Seal closes every active segment so it becomes drainable. The next
// Persist opens new segments.
func (j *Journal) Seal() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sealLocked()
}

func (j *Journal) sealLocked() error {
	var errs []error
	for ch, seg := range j.active {
		if err := closeSegment(seg); err != nil {
			errs = append(errs, fmt.Errorf("seal %s: %w", seg.path, err))
		}
		delete(j.active, ch)
	}
	SetActiveSegments(0)
	return errors.Join(errs...)
}

func closeSegment(seg *segment) error {
	if err := seg.f.Sync(); err != nil {
		seg.f.Close() //nolint:errcheck
		return err
	}
	return seg.f.Close()
}

func (j *Journal) isActive(path string) bool {
	for _, seg := range j.active {
		if seg.path == path {
			return true
		}
	}
	return false
}

// ScanAll returns every sealed, non-consumed segment ordered by day, then
// sequence, then channel.
func (j *Journal) ScanAll() ([]File, error) {
	entries, err := os.ReadDir(j.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	files := make([]File, 0, len(entries))
	for _, de := range entries {
		if de.IsDir() || strings.HasSuffix(de.Name(), ConsumedSuffix) {
			continue
		}
		f, err := parseName(de.Name())
		if err != nil {
			continue
		}
		f.Path = filepath.Join(j.cfg.Dir, de.Name())
		if j.isActive(f.Path) {
			continue
		}
		if info, err := de.Info(); err == nil {
			f.Size = info.Size()
		}
		files = append(files, f)
	}

	sort.Slice(files, func(a, b int) bool {
		fa, fb := files[a], files[b]
		if fa.Day != fb.Day {
			return fa.Day < fb.Day
		}
		if fa.Seq != fb.Seq {
			return fa.Seq < fb.Seq
		}
		return fa.Channel < fb.Channel
	})

	SetBacklogFiles(len(files))
	return files, nil
}

// ReadLines calls fn for every non-empty line of f in append order. The
// slice passed to fn is only valid for the duration of the call. Returning
// an error from fn stops the scan and is returned unchanged.
func (j *Journal) ReadLines(f File, fn func(line []byte) error) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", f.Name, err)
	}
	return nil
}

// MarkConsumed deletes or renames a drained segment so ScanAll skips it.
func (j *Journal) MarkConsumed(f File) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isActive(f.Path) {
		return fmt.Errorf("%w: %s", ErrActiveFile, f.Name)
	}

	switch j.cfg.ConsumeMode {
	case ConsumeDelete:
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", f.Name, err)
		}
	default:
		if err := os.Rename(f.Path, f.Path+ConsumedSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rename %s: %w", f.Name, err)
		}
	}
	if err := syncDir(j.cfg.Dir); err != nil {
		logging.Warn().Err(err).Str("dir", j.cfg.Dir).Msg("Failed to fsync journal directory")
	}

	j.filesConsumed.Add(1)
	RecordFileConsumed()
	logging.Debug().Str("file", f.Name).Str("mode", string(j.cfg.ConsumeMode)).Msg("Journal segment consumed")
	return nil
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	active := len(j.active)
	j.mu.Unlock()

	return Stats{
		ActiveSegments: active,
		LinesPersisted: j.linesPersisted.Load(),
		FilesConsumed:  j.filesConsumed.Load(),
	}
}

// Close seals active segments and rejects further writes. Safe to call twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.sealLocked()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// DecodeRecord parses one journal line.
func DecodeRecord(line []byte) (audit.Record, error) {
	var rec audit.Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return audit.Record{}, fmt.Errorf("decode journal line: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return audit.Record{}, err
	}
	return rec, nil
}
