package csvmap

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/csvmap/pkg/rowio"
)

type countingCloser struct {
	*bytes.Buffer
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func collectRows(t *testing.T, m *ListMapper) []string {
	t.Helper()
	var out []string
	for rec, err := range m.All() {
		require.NoError(t, err)
		out = append(out, rec.String())
	}
	return out
}

func collectKeyed(t *testing.T, r *KeyedReader) []map[string]string {
	t.Helper()
	var out []map[string]string
	for rec, err := range r.All() {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestReadRows(t *testing.T) {
	const input = "a,b\n1, 2 \n\n3,4\n"

	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{
			name: "defaults",
			want: []string{`Line: 1 ["a", "b"]`, `Line: 2 ["1", "2"]`, `Line: 4 ["3", "4"]`},
		},
		{
			name: "keep blanks",
			opts: []Option{WithIgnoreBlanks(false)},
			want: []string{`Line: 1 ["a", "b"]`, `Line: 2 ["1", "2"]`, `Line: 3 []`, `Line: 4 ["3", "4"]`},
		},
		{
			name: "leading whitespace",
			opts: []Option{WithLeadingWS(true)},
			want: []string{`Line: 1 ["a", "b"]`, `Line: 2 ["1", " 2"]`, `Line: 4 ["3", "4"]`},
		},
		{
			name: "trailing whitespace",
			opts: []Option{WithTrailingWS(true)},
			want: []string{`Line: 1 ["a", "b"]`, `Line: 2 ["1", "2 "]`, `Line: 4 ["3", "4"]`},
		},
		{
			name: "raw handler",
			opts: []Option{WithRawHandler(func(line int, rec LineRecord) Result[LineRecord] {
				if line == 2 {
					return Keep(rec)
				}
				return Omit[LineRecord]()
			})},
			want: []string{`Line: 2 ["1", "2"]`},
		},
		{
			name: "record handler",
			opts: []Option{WithHandler(Handler[LineRecord](func(_ int, rec LineRecord) Result[LineRecord] {
				rec.Fields = append(rec.Fields, "x")
				return Keep(rec)
			}))},
			want: []string{`Line: 1 ["a", "b", "x"]`, `Line: 2 ["1", "2", "x"]`, `Line: 4 ["3", "4", "x"]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ReadRows(strings.NewReader(input), tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, collectRows(t, m))
		})
	}
}

func TestReadRowsPipeDelimiter(t *testing.T) {
	m, err := ReadRows(strings.NewReader("a|b\n1|2\n3|4\n"), WithDelimiter("|"))
	require.NoError(t, err)
	assert.Equal(t, []string{`Line: 1 ["a", "b"]`, `Line: 2 ["1", "2"]`, `Line: 3 ["3", "4"]`}, collectRows(t, m))

	m, err = ReadRows(strings.NewReader("a|b\n"), WithDialectName("pipe"))
	require.NoError(t, err)
	assert.Equal(t, []string{`Line: 1 ["a", "b"]`}, collectRows(t, m))
}

func TestReadRowsParseError(t *testing.T) {
	m, err := ReadRows(strings.NewReader("a,b\n1,x\"y\n3,4\n"))
	require.NoError(t, err)

	_, err = m.Read()
	require.NoError(t, err)

	_, err = m.Read()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.False(t, Recoverable(err))

	_, again := m.Read()
	assert.Equal(t, err, again)

	t.Run("lazy quotes recover", func(t *testing.T) {
		m, err := ReadRows(strings.NewReader("a,b\n1,x\"y\n"), WithStrict(false))
		require.NoError(t, err)
		assert.Equal(t, []string{`Line: 1 ["a", "b"]`, `Line: 2 ["1", "x\"y"]`}, collectRows(t, m))
	})
}

func TestReadKeyed(t *testing.T) {
	const input = "a,b\n1,2\na,b\n3,4\n"

	tests := []struct {
		name   string
		input  string
		fields []string
		opts   []Option
		want   []map[string]string
	}{
		{
			name:  "header row suppressed",
			input: input,
			want:  []map[string]string{{"a": "1", "b": "2"}, {"a": "3", "b": "4"}},
		},
		{
			name:  "suppression disabled",
			input: input,
			opts:  []Option{WithIgnoreRowsWithFields(false)},
			want:  []map[string]string{{"a": "1", "b": "2"}, {"a": "a", "b": "b"}, {"a": "3", "b": "4"}},
		},
		{
			name:   "explicit fields",
			input:  "1,2\na,b\n3,4\n",
			fields: []string{"a", "b"},
			want:   []map[string]string{{"a": "1", "b": "2"}, {"a": "3", "b": "4"}},
		},
		{
			name:   "explicit fields unlike data",
			input:  "1,2\na,b\n3,4\n",
			fields: []string{"x", "y"},
			want:   []map[string]string{{"x": "1", "y": "2"}, {"x": "a", "y": "b"}, {"x": "3", "y": "4"}},
		},
		{
			name:  "handler drops by line",
			input: input,
			opts: []Option{WithHandler(Handler[map[string]string](func(line int, m map[string]string) Result[map[string]string] {
				if line == 2 {
					return Omit[map[string]string]()
				}
				return Keep(m)
			}))},
			want: []map[string]string{{"a": "3", "b": "4"}},
		},
		{
			name:  "rest value",
			input: "a,b\n1,2\na,b\n3\n",
			opts:  []Option{WithRestVal("7")},
			want:  []map[string]string{{"a": "1", "b": "2"}, {"a": "3", "b": "7"}},
		},
		{
			name:  "rest key",
			input: "a,b\n1,2\na,b\n3,4,5\n",
			opts:  []Option{WithRestKey("a")},
			want:  []map[string]string{{"a": "1", "b": "2"}, {"a": "3", "b": "4", "a0": "5"}},
		},
		{
			name:  "rename",
			input: input,
			opts:  []Option{WithFieldRename(map[string]string{"b": "c"})},
			want:  []map[string]string{{"a": "1", "c": "2"}, {"a": "3", "c": "4"}},
		},
		{
			name:  "rest keys are not renamed",
			input: "a,b\n1,2,3\n",
			opts:  []Option{WithRestKey("x"), WithFieldRename(map[string]string{"x0": "y", "a": "A"})},
			want:  []map[string]string{{"A": "1", "b": "2", "x0": "3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ReadKeyed(strings.NewReader(tt.input), tt.fields, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, collectKeyed(t, r))
		})
	}
}

func TestReadKeyedArity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ArityError
		message string
	}{
		{
			name:    "insufficient",
			input:   "a,b\n1,2\na,b\n3\n",
			want:    ArityError{Line: 4, Expected: 2, Actual: 1, Direction: Insufficient},
			message: "line 4: insufficient fields (expected 2, got 1)",
		},
		{
			name:    "too many",
			input:   "a,b\n1,2\na,b\n3,4,5\n",
			want:    ArityError{Line: 4, Expected: 2, Actual: 3, Direction: TooMany},
			message: "line 4: too many fields (expected 2, got 3)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ReadKeyed(strings.NewReader(tt.input), nil)
			require.NoError(t, err)
			defer r.Close()

			rec, err := r.Read()
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"a": "1", "b": "2"}, rec)

			_, err = r.Read()
			var ae *ArityError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.want, *ae)
			assert.EqualError(t, err, tt.message)
			assert.ErrorIs(t, err, ErrArity)
			assert.True(t, Recoverable(err))

			_, err = r.Read()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReadKeyedContinuesAfterArityError(t *testing.T) {
	r, err := ReadKeyed(strings.NewReader("a,b\n1\n\n3,4\n5,6,7\n8,9\n"), nil)
	require.NoError(t, err)

	var got []map[string]string
	var lines []int
	for rec, err := range r.All() {
		if err != nil {
			var ae *ArityError
			require.ErrorAs(t, err, &ae)
			lines = append(lines, ae.Line)
			continue
		}
		got = append(got, rec)
	}
	assert.Equal(t, []map[string]string{{"a": "3", "b": "4"}, {"a": "8", "b": "9"}}, got)
	assert.Equal(t, []int{2, 5}, lines)
}

func TestReadKeyedFields(t *testing.T) {
	r, err := ReadKeyed(strings.NewReader("\n\nx,y\n1,2\n"), nil)
	require.NoError(t, err)
	assert.Nil(t, r.Fields())

	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, rec)
	assert.Equal(t, []string{"x", "y"}, r.Fields())
	assert.Equal(t, 4, r.Line())
	require.NoError(t, r.Close())

	r, err = ReadKeyed(strings.NewReader("x,y\n1,2\n"), nil, WithFieldRename(map[string]string{"y": "why"}))
	require.NoError(t, err)
	assert.Nil(t, r.Keys())
	_, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, r.Fields())
	assert.Equal(t, []string{"x", "why"}, r.Keys())
	require.NoError(t, r.Close())
}

func TestReadConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		opts   []Option
	}{
		{name: "duplicate fields", fields: []string{"a", "a"}},
		{name: "empty fields", fields: []string{}},
		{name: "unknown dialect", opts: []Option{WithDialectName("nope")}},
		{name: "bad delimiter", opts: []Option{WithDelimiter("ab")}},
		{name: "unknown encoding", opts: []Option{WithEncoding("klingon", "")}},
		{name: "bad quote", opts: []Option{WithDialect(rowio.Dialect{Delimiter: ',', QuoteChar: '\'', DoubleQuote: true})}},
		{
			name: "handler type",
			opts: []Option{WithHandler(Handler[[]string](func(_ int, v []string) Result[[]string] { return Keep(v) }))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &countingCloser{Buffer: bytes.NewBufferString("a,b\n")}
			_, err := ReadKeyed(rowio.Owned(src), tt.fields, tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)

			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestReaderClosesOnce(t *testing.T) {
	t.Run("abandoned", func(t *testing.T) {
		src := &countingCloser{Buffer: bytes.NewBufferString("a,b\n1,2\n3,4\n")}
		r, err := ReadKeyed(rowio.Owned(src), nil)
		require.NoError(t, err)

		_, err = r.Read()
		require.NoError(t, err)
		require.NoError(t, r.Close())
		require.NoError(t, r.Close())
		assert.Equal(t, 1, src.closes)

		_, err = r.Read()
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("loop broken early", func(t *testing.T) {
		src := &countingCloser{Buffer: bytes.NewBufferString("a,b\n1,2\n3,4\n")}
		r, err := ReadKeyed(rowio.Owned(src), nil)
		require.NoError(t, err)

		for range r.All() {
			break
		}
		assert.Equal(t, 1, src.closes)
		require.NoError(t, r.Close())
		assert.Equal(t, 1, src.closes)
	})

	t.Run("read to the end", func(t *testing.T) {
		src := &countingCloser{Buffer: bytes.NewBufferString("a,b\n1,2\n")}
		m, err := ReadRows(rowio.Owned(src))
		require.NoError(t, err)

		for {
			_, err := m.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
		}
		assert.Equal(t, 1, src.closes)
		require.NoError(t, m.Close())
		assert.Equal(t, 1, src.closes)
	})

	t.Run("borrowed stream untouched", func(t *testing.T) {
		src := &countingCloser{Buffer: bytes.NewBufferString("a,b\n1,2\n")}
		r, err := ReadKeyed(src, nil)
		require.NoError(t, err)
		collectKeyed(t, r)
		assert.Zero(t, src.closes)
	})
}

func TestReadKeyedFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,city\r\nAnn,Zürich\r\n"), 0o644))

	r, err := ReadKeyed(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{{"name": "Ann", "city": "Zürich"}}, collectKeyed(t, r))

	_, err = ReadKeyed(filepath.Join(t.TempDir(), "missing.csv"), nil)
	var ioe *IOError
	assert.ErrorAs(t, err, &ioe)
}

func TestReadKeyedLatin1(t *testing.T) {
	r, err := ReadKeyed(bytes.NewReader([]byte("name\nZ\xfcrich\n")), nil, WithEncoding("latin1", ""))
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{{"name": "Zürich"}}, collectKeyed(t, r))
}

func TestReadKeyedRestKeyCollision(t *testing.T) {
	_, err := ReadKeyed(strings.NewReader("1,2,3\n"), []string{"a", "a0"}, WithRestKey("a"))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ReadKeyed(strings.NewReader("1,2,3\n"), []string{"a", "b"},
		WithRestKey("a"), WithFieldRename(map[string]string{"b": "a1"}))
	assert.ErrorIs(t, err, ErrConfig)

	r, err := ReadKeyed(strings.NewReader("a,a0\n1,2,3\n"), nil, WithRestKey("a"))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "rest key", cfgErr.Option)
	assert.False(t, Recoverable(err))
	_, err = r.Read()
	assert.ErrorIs(t, err, ErrConfig)

	// Names that only look like rest keys are fine.
	r, err = ReadKeyed(strings.NewReader("a,a01,ab\n1,2,3,4\n"), nil, WithRestKey("a"))
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{{"a": "1", "a01": "2", "ab": "3", "a0": "4"}}, collectKeyed(t, r))
}

func TestReadKeyedLeadingBlankLines(t *testing.T) {
	r, err := ReadKeyed(strings.NewReader("\n\na,b\n1,2\n"), nil, WithIgnoreBlanks(false))
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, rec)
	assert.Equal(t, []string{"a", "b"}, r.Fields())
	assert.Equal(t, 4, r.Line())

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}
