package weave

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/theimaginaryfoundation/thread-weaver/weave/fileutils"
)

// ThreadDocument is the wire form of one thread as handed over by the
// archive parser: a raw header of comma-separated participant names and the
// ordered (sender, text, timestamp) triples.
type ThreadDocument struct {
	Participants string          `json:"participants"`
	Messages     []MessageRecord `json:"messages"`
}

// IngestOptions controls archive and thread-file ingestion.
type IngestOptions struct {
	// ArrayField is the JSON field holding the thread array when the
	// top-level value is an object. If empty, the first array-valued field
	// is used.
	ArrayField string

	// PageSize is the maximum messages allowed per thread (defaults to
	// DefaultPageSize). A longer thread indicates a corrupt export.
	PageSize int
}

// SkippedThread records a thread that was dropped whole during ingestion.
// Threads are never partially ingested: dropping individual messages would
// corrupt the ordering invariants everything downstream relies on.
type SkippedThread struct {
	Source string // file path or "archive[i]"
	Err    error
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	ThreadsRead int
	Skipped     []SkippedThread
}

// ThreadFromDocument validates and parses a wire thread into the domain
// form. An unparsable participant header is an error; so is any malformed
// timestamp, since a thread with even one unplaceable message cannot keep
// its chronology promise.
func ThreadFromDocument(doc ThreadDocument, pageSize int) (Thread, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	key, err := ParseParticipantHeader(doc.Participants)
	if err != nil {
		return Thread{}, fmt.Errorf("ThreadFromDocument: %w", err)
	}
	if len(doc.Messages) == 0 {
		return Thread{}, fmt.Errorf("ThreadFromDocument: thread %q has no messages", key)
	}
	if len(doc.Messages) > pageSize {
		return Thread{}, fmt.Errorf("ThreadFromDocument: thread %q has %d messages, page size is %d",
			key, len(doc.Messages), pageSize)
	}

	t := Thread{Key: key, Messages: make([]Message, 0, len(doc.Messages))}
	for i, rec := range doc.Messages {
		mt, err := ParseMessageTime(rec.Timestamp)
		if err != nil {
			return Thread{}, fmt.Errorf("ThreadFromDocument: thread %q message %d: %w", key, i, err)
		}
		t.Messages = append(t.Messages, Message{Sender: rec.Sender, Text: rec.Text, Time: mt})
	}
	return t, nil
}

// ReadArchive streams a whole-archive JSON export into a thread store. The
// input is either a top-level array of thread documents or an object with an
// array field (see IngestOptions.ArrayField). The file is never read into
// memory at once.
//
// A thread with an unparsable header or timestamp is skipped whole and
// reported; other threads keep flowing.
func ReadArchive(ctx context.Context, path string, opts IngestOptions) (*ThreadStore, IngestReport, error) {
	if ctx == nil {
		return nil, IngestReport{}, errors.New("ReadArchive: ctx is nil")
	}
	if path == "" {
		return nil, IngestReport{}, errors.New("ReadArchive: path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, IngestReport{}, fmt.Errorf("ReadArchive: open input: %w", err)
	}
	defer f.Close()

	store := NewThreadStore()
	var report IngestReport
	index := 0
	err = streamThreadArray(ctx, f, opts.ArrayField, func(raw json.RawMessage) error {
		source := fmt.Sprintf("archive[%d]", index)
		index++

		var doc ThreadDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			report.Skipped = append(report.Skipped, SkippedThread{Source: source, Err: err})
			return nil
		}
		t, err := ThreadFromDocument(doc, opts.PageSize)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedThread{Source: source, Err: err})
			return nil
		}
		if err := store.Add(t); err != nil {
			return err
		}
		report.ThreadsRead++
		return nil
	})
	if err != nil {
		return nil, IngestReport{}, err
	}
	return store, report, nil
}

// LoadThreadFile reads a single thread document file.
func LoadThreadFile(path string, pageSize int) (Thread, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Thread{}, fmt.Errorf("LoadThreadFile: %w", err)
	}
	var doc ThreadDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return Thread{}, fmt.Errorf("LoadThreadFile: %s: %w", path, err)
	}
	t, err := ThreadFromDocument(doc, pageSize)
	if err != nil {
		return Thread{}, fmt.Errorf("LoadThreadFile: %s: %w", path, err)
	}
	return t, nil
}

// LoadThreadDir reads every .json thread file in dir (sorted by name) into a
// thread store. Files that fail to parse are skipped and reported.
func LoadThreadDir(ctx context.Context, dir string, opts IngestOptions) (*ThreadStore, IngestReport, error) {
	if ctx == nil {
		return nil, IngestReport{}, errors.New("LoadThreadDir: ctx is nil")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, IngestReport{}, fmt.Errorf("LoadThreadDir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	store := NewThreadStore()
	var report IngestReport
	for _, path := range files {
		select {
		case <-ctx.Done():
			return nil, IngestReport{}, ctx.Err()
		default:
		}

		t, err := LoadThreadFile(path, opts.PageSize)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedThread{Source: path, Err: err})
			continue
		}
		if err := store.Add(t); err != nil {
			return nil, IngestReport{}, err
		}
		report.ThreadsRead++
	}
	return store, report, nil
}

// SplitOptions controls how SplitArchive writes per-thread files.
type SplitOptions struct {
	IngestOptions

	// OverwriteExisting controls whether existing output files should be
	// overwritten. If false and a file already exists, SplitArchive returns
	// an error.
	OverwriteExisting bool

	// Pretty controls whether each output JSON file is indented.
	Pretty bool

	// FileMode is used when creating output files (defaults to 0o644).
	FileMode fs.FileMode
}

// SplitResult contains basic stats from a split run.
type SplitResult struct {
	ThreadsWritten int
	Skipped        []SkippedThread
}

// SplitArchive streams a whole-archive export and writes one JSON file per
// thread into outputDir, named after the sanitized participant key with a
// collision counter. The per-thread files are what the merge step consumes,
// so a big export only has to be decoded once.
func SplitArchive(ctx context.Context, inputPath, outputDir string, opts SplitOptions) (SplitResult, error) {
	if ctx == nil {
		return SplitResult{}, errors.New("SplitArchive: ctx is nil")
	}
	if inputPath == "" {
		return SplitResult{}, errors.New("SplitArchive: inputPath is empty")
	}
	if outputDir == "" {
		return SplitResult{}, errors.New("SplitArchive: outputDir is empty")
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return SplitResult{}, fmt.Errorf("SplitArchive: mkdir outputDir: %w", err)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return SplitResult{}, fmt.Errorf("SplitArchive: open input: %w", err)
	}
	defer f.Close()

	seen := make(map[string]int)
	var res SplitResult
	index := 0
	err = streamThreadArray(ctx, f, opts.ArrayField, func(raw json.RawMessage) error {
		source := fmt.Sprintf("archive[%d]", index)
		index++

		var doc ThreadDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			res.Skipped = append(res.Skipped, SkippedThread{Source: source, Err: err})
			return nil
		}
		// Validate before writing so the output directory only ever holds
		// threads the merge step can actually consume.
		if _, err := ThreadFromDocument(doc, opts.PageSize); err != nil {
			res.Skipped = append(res.Skipped, SkippedThread{Source: source, Err: err})
			return nil
		}

		base := sanitizeFilenameComponent(doc.Participants)
		if base == "" {
			base = "thread"
		}
		seenCount := seen[base]
		seen[base] = seenCount + 1

		filename := base
		if seenCount > 0 {
			filename = fmt.Sprintf("%s-%d", base, seenCount+1)
		}
		filename += ".json"

		outPath := filepath.Join(outputDir, filename)
		if !opts.OverwriteExisting {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("SplitArchive: output file already exists: %s", outPath)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("SplitArchive: stat output file: %w", err)
			}
		}

		if err := fileutils.WriteJSONFileAtomic(outPath, doc, opts.Pretty); err != nil {
			return fmt.Errorf("SplitArchive: write thread %q: %w", doc.Participants, err)
		}
		res.ThreadsWritten++
		return nil
	})
	if err != nil {
		return SplitResult{}, err
	}
	return res, nil
}

// streamThreadArray decodes a top-level array, or an object containing one,
// invoking fn per element. It uses a streaming decoder; the export is
// typically one huge line.
func streamThreadArray(ctx context.Context, r io.Reader, arrayField string, fn func(json.RawMessage) error) error {
	dec := json.NewDecoder(bufio.NewReaderSize(r, 1<<20))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("streamThreadArray: read first token: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("streamThreadArray: expected JSON array/object, got %T", tok)
	}

	switch delim {
	case '[':
		if err := decodeArrayFromOpen(ctx, dec, fn); err != nil {
			return err
		}
		return expectDelim(dec, ']')
	case '{':
		foundArray := false
		for dec.More() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			keyTok, err := dec.Token()
			if err != nil {
				return fmt.Errorf("streamThreadArray: read object key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return fmt.Errorf("streamThreadArray: expected string key, got %T", keyTok)
			}

			valTok, err := dec.Token()
			if err != nil {
				return fmt.Errorf("streamThreadArray: read value for key %q: %w", key, err)
			}

			isTarget := arrayField != "" && key == arrayField
			if !isTarget && arrayField == "" && !foundArray {
				if d, ok := valTok.(json.Delim); ok && d == '[' {
					isTarget = true
				}
			}

			if isTarget {
				d, ok := valTok.(json.Delim)
				if !ok || d != '[' {
					return fmt.Errorf("streamThreadArray: key %q chosen as array but value isn't one", key)
				}
				foundArray = true
				if err := decodeArrayFromOpen(ctx, dec, fn); err != nil {
					return err
				}
				if err := expectDelim(dec, ']'); err != nil {
					return err
				}
				continue
			}

			if err := skipValue(dec, valTok); err != nil {
				return fmt.Errorf("streamThreadArray: skip key %q value: %w", key, err)
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
		if !foundArray {
			return errors.New("streamThreadArray: no thread array found in top-level object")
		}
		return nil
	default:
		return fmt.Errorf("streamThreadArray: unsupported top-level delimiter %q", delim)
	}
}

func decodeArrayFromOpen(ctx context.Context, dec *json.Decoder, fn func(json.RawMessage) error) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("streamThreadArray: decode array element: %w", err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("streamThreadArray: read closing token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("streamThreadArray: expected closing %q, got %v", want, tok)
	}
	return nil
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		// Primitive: already fully consumed.
		return nil
	}
	switch d {
	case '{', '[':
	default:
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func sanitizeFilenameComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	out = strings.Trim(out, "._-")
	return strings.TrimSpace(out)
}
