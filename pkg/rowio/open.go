// =============================================================================
// csvmap - Row I/O: Stream Opening
// =============================================================================
//
// Open turns a caller-supplied source into a Stream the row reader or writer
// can consume. Supported sources:
//   - string          : a filesystem path, opened (and later closed) by Open
//   - io.Reader       : an already-open input stream (read mode)
//   - io.Writer       : an already-open output stream (write/append mode)
//   - *bytes.Buffer   : an in-memory buffer (either mode)
//   - Owned(x)        : an already-open stream whose ownership passes to the
//                       Stream, so Close closes it
//
// ENCODINGS:
//   Names are resolved through the WHATWG encoding index, so "latin1",
//   "windows-1252", "shift_jis", "utf-16le" and friends all work. Two extra
//   names are recognised:
//     "auto"      : read only; the charset is detected from the first 2 KiB
//     "utf-8-sig" : UTF-8 with a byte order mark (stripped on read,
//                   written on write)
//
// =============================================================================

package rowio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Mode selects how a source is opened.
type Mode int

const (
	// ModeRead opens a source for reading.
	ModeRead Mode = iota

	// ModeWrite opens a source for writing, truncating files.
	ModeWrite

	// ModeAppend opens a source for writing, appending to files.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Encoding error policies.
const (
	ErrorsStrict  = "strict"
	ErrorsReplace = "replace"
)

// detectPeekSize is how much input "auto" inspects.
const detectPeekSize = 2048

// OwnedSource marks an already-open stream whose lifetime is handed over to
// the Stream created from it.
type OwnedSource struct {
	Stream io.Closer
}

// Owned wraps an open stream so that closing the Stream also closes it.
func Owned(stream io.Closer) OwnedSource {
	return OwnedSource{Stream: stream}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is an opened source. It is single-owner and not safe for concurrent
// use.
type Stream struct {
	name   string
	mode   Mode
	reader io.Reader
	writer io.Writer

	// encoder is the transforming writer, which must be closed to flush its
	// last bytes even when the underlying stream belongs to the caller.
	encoder io.Closer

	// owned is closed by Close when the stream owns the resource.
	owned io.Closer

	closed bool
}

// Name returns the path the stream was opened from, if any.
func (s *Stream) Name() string {
	return s.name
}

// Mode returns the mode the stream was opened with.
func (s *Stream) Mode() Mode {
	return s.mode
}

// Reader returns the decoded input. It is nil for write streams.
func (s *Stream) Reader() io.Reader {
	return s.reader
}

// Writer returns the encoding output. It is nil for read streams.
func (s *Stream) Writer() io.Writer {
	return s.writer
}

// Managed reports whether Close releases the underlying resource.
func (s *Stream) Managed() bool {
	return s.owned != nil
}

// Close flushes any pending encoded output and releases the underlying
// resource if the stream owns it. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.encoder != nil {
		if err := s.encoder.Close(); err != nil {
			firstErr = &IOError{Op: "flush", Path: s.name, Err: err}
		}
	}
	if s.owned != nil {
		if err := s.owned.Close(); err != nil && firstErr == nil {
			firstErr = &IOError{Op: "close", Path: s.name, Err: err}
		}
	}
	return firstErr
}

// =============================================================================
// OPEN
// =============================================================================

// Open opens src in the given mode, applying the named text encoding.
//
// PARAMETERS:
//   - src: a path, an open stream, a *bytes.Buffer or an OwnedSource.
//   - mode: ModeRead, ModeWrite or ModeAppend.
//   - encodingName: "" for raw UTF-8 passthrough, or an encoding name.
//   - errorsPolicy: "" or "strict" fails on unencodable characters when
//     writing; "replace" substitutes them.
//
// RETURNS:
//   - The opened Stream.
//   - An *IOError if the source cannot be opened, or an error wrapping
//     ErrDialect for unknown encodings or policies.
func Open(src any, mode Mode, encodingName, errorsPolicy string) (*Stream, error) {
	if errorsPolicy != "" && errorsPolicy != ErrorsStrict && errorsPolicy != ErrorsReplace {
		return nil, fmt.Errorf("%w: unknown encoding error policy %q", ErrDialect, errorsPolicy)
	}

	s, err := openRaw(src, mode)
	if err != nil {
		return nil, err
	}

	if err := s.applyEncoding(encodingName, errorsPolicy); err != nil {
		if s.owned != nil {
			s.owned.Close()
		}
		return nil, err
	}
	return s, nil
}

// openRaw resolves the source without any encoding applied.
func openRaw(src any, mode Mode) (*Stream, error) {
	s := &Stream{mode: mode}

	switch v := src.(type) {
	case string:
		f, err := openFile(v, mode)
		if err != nil {
			return nil, &IOError{Op: "open", Path: v, Err: err}
		}
		s.name = v
		s.owned = f
		s.bind(f)
		return s, nil

	case OwnedSource:
		if v.Stream == nil {
			return nil, &IOError{Op: "open", Err: ErrUnsupportedSource}
		}
		if f, ok := v.Stream.(*os.File); ok {
			s.name = f.Name()
		}
		s.owned = v.Stream
		if !s.bind(v.Stream) {
			return nil, &IOError{Op: "open", Path: s.name, Err: fmt.Errorf("%w: %T cannot be opened for %s", ErrUnsupportedSource, v.Stream, mode)}
		}
		return s, nil

	case nil:
		return nil, &IOError{Op: "open", Err: fmt.Errorf("%w: nil", ErrUnsupportedSource)}

	default:
		if !s.bind(src) {
			return nil, &IOError{Op: "open", Err: fmt.Errorf("%w: %T cannot be opened for %s", ErrUnsupportedSource, src, mode)}
		}
		return s, nil
	}
}

// bind attaches src as the reader or writer for the stream's mode.
func (s *Stream) bind(src any) bool {
	if s.mode == ModeRead {
		r, ok := src.(io.Reader)
		s.reader = r
		return ok
	}
	w, ok := src.(io.Writer)
	s.writer = w
	return ok
}

func openFile(path string, mode Mode) (*os.File, error) {
	switch mode {
	case ModeRead:
		return os.Open(path)
	case ModeWrite:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	case ModeAppend:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	default:
		return nil, fmt.Errorf("unknown mode %d", mode)
	}
}

// =============================================================================
// ENCODING
// =============================================================================

// applyEncoding wraps the raw reader or writer in a transcoder.
func (s *Stream) applyEncoding(name, errorsPolicy string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}

	if s.mode == ModeRead {
		return s.applyDecoding(name)
	}

	enc, err := lookupEncoding(name)
	if err != nil {
		return err
	}
	if isUTF8(enc) {
		return nil
	}

	encoder := enc.NewEncoder()
	if errorsPolicy == ErrorsReplace {
		encoder = encoding.ReplaceUnsupported(encoder)
	}
	tw := transform.NewWriter(s.writer, encoder)
	s.writer = tw
	s.encoder = tw
	return nil
}

func (s *Stream) applyDecoding(name string) error {
	var src io.Reader = s.reader

	if name == "auto" {
		br := bufio.NewReader(src)
		peek, _ := br.Peek(detectPeekSize)
		name = detectCharset(peek)
		src = br
	}

	enc, err := lookupEncoding(name)
	if err != nil {
		return err
	}

	// BOMOverride honours a UTF-8/16 byte order mark and strips it.
	s.reader = transform.NewReader(src, unicode.BOMOverride(enc.NewDecoder()))
	return nil
}

// lookupEncoding resolves an encoding name.
func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "utf-8-sig" || name == "utf8-sig" {
		return unicode.UTF8BOM, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrDialect, name)
	}
	return enc, nil
}

func isUTF8(enc encoding.Encoding) bool {
	name, err := htmlindex.Name(enc)
	return err == nil && name == "utf-8"
}

// detectCharset guesses the charset of a sample, falling back to UTF-8.
func detectCharset(sample []byte) string {
	if len(sample) == 0 || bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}) {
		return "utf-8"
	}
	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result == nil {
		return "utf-8"
	}
	charset := strings.ToLower(result.Charset)
	if _, err := htmlindex.Get(charset); err != nil {
		return "utf-8"
	}
	return charset
}
