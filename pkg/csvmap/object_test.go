package csvmap

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainRecord struct {
	A string
	B string
}

type person struct {
	Name    string            `csv:"name"`
	Age     int               `csv:"age,omitempty"`
	Email   *string           `csv:"email"`
	Active  bool              `csv:"active,omitempty"`
	Timeout time.Duration     `csv:"timeout,omitempty"`
	Seen    *time.Time        `csv:"seen"`
	Notes   string            `csv:"-"`
	Extra   map[string]string `csv:",rest"`
}

type event struct {
	Name string    `csv:"name"`
	When time.Time `csv:"when"`
	Code code      `csv:"code"`
}

// code marshals through a pointer receiver only.
type code struct {
	v string
}

func (c *code) MarshalText() ([]byte, error) {
	return []byte("C-" + c.v), nil
}

func (c *code) UnmarshalText(b []byte) error {
	c.v = strings.TrimPrefix(string(b), "C-")
	return nil
}

// bag binds itself and refuses the field "bad".
type bag struct {
	values map[string]string
}

func (b *bag) SetField(name, value string) error {
	if name == "bad" {
		return errors.New("refused")
	}
	if b.values == nil {
		b.values = map[string]string{}
	}
	b.values[name] = value
	return nil
}

func (b *bag) GetField(name string) (string, bool) {
	v, ok := b.values[name]
	return v, ok
}

func TestReadObjects(t *testing.T) {
	r, err := ReadObjects[*plainRecord](strings.NewReader("A,B\n1,2\nA,B\n3,4\n"), nil, nil)
	require.NoError(t, err)

	var got []plainRecord
	for rec, err := range r.All() {
		require.NoError(t, err)
		got = append(got, *rec)
	}
	assert.Equal(t, []plainRecord{{A: "1", B: "2"}, {A: "3", B: "4"}}, got)

	t.Run("explicit fields", func(t *testing.T) {
		r, err := ReadObjects(strings.NewReader("1,2\nA,B\n3,4\n"), func() plainRecord { return plainRecord{} }, []string{"B", "A"})
		require.NoError(t, err)

		var got []plainRecord
		for rec, err := range r.All() {
			require.NoError(t, err)
			got = append(got, rec)
		}
		assert.Equal(t, []plainRecord{{A: "2", B: "1"}, {A: "B", B: "A"}, {A: "4", B: "3"}}, got)
	})
}

func TestReadObjectsConversion(t *testing.T) {
	input := "name,age,email,active,timeout,seen,nick\n" +
		"ann,31,ann@example.com,true,1m30s,2024-05-01T10:00:00Z,an\n" +
		"bob,,,,,,\n" +
		"cid,old,,,,,\n"

	r, err := ReadObjects[person](strings.NewReader(input), nil, nil)
	require.NoError(t, err)
	defer r.Close()

	ann, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "ann", ann.Name)
	assert.Equal(t, 31, ann.Age)
	require.NotNil(t, ann.Email)
	assert.Equal(t, "ann@example.com", *ann.Email)
	assert.True(t, ann.Active)
	assert.Equal(t, 90*time.Second, ann.Timeout)
	require.NotNil(t, ann.Seen)
	assert.Equal(t, 2024, ann.Seen.Year())
	assert.Equal(t, map[string]string{"nick": "an"}, ann.Extra)

	bob, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, person{Name: "bob", Extra: map[string]string{"nick": ""}}, bob)

	_, err = r.Read()
	var be *BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 4, be.Line)
	assert.Equal(t, "age", be.Field)
	assert.True(t, Recoverable(err))
}

func TestReadObjectsFieldSetter(t *testing.T) {
	r, err := ReadObjects(strings.NewReader("a,bad\n1,2\n"), func() *bag { return &bag{} }, nil)
	require.NoError(t, err)

	_, err = r.Read()
	var be *BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "bad", be.Field)
	assert.Equal(t, 2, be.Line)

	r, err = ReadObjects(strings.NewReader("a,b\n1,2\n"), func() *bag { return &bag{} }, nil,
		WithFieldRename(map[string]string{"b": "c"}))
	require.NoError(t, err)
	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "c": "2"}, rec.values)
	require.NoError(t, r.Close())
}

func TestReadObjectsRejectsNonStruct(t *testing.T) {
	_, err := ReadObjects[int](strings.NewReader("a\n1\n"), nil, nil)
	assert.ErrorIs(t, err, ErrConfig)

	type badRest struct {
		Extra map[string]int `csv:",rest"`
	}
	_, err = ReadObjects[badRest](strings.NewReader("a\n1\n"), nil, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestStructFields(t *testing.T) {
	names, err := StructFields[*person]()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age", "email", "active", "timeout", "seen"}, names)

	_, err = StructFields[string]()
	assert.ErrorIs(t, err, ErrConfig)
}

func TestWriteObjects(t *testing.T) {
	email := "bob@example.com"
	people := []*person{
		{Name: "ann", Notes: "not written", Extra: map[string]string{"nick": "an"}},
		{Name: "bob", Age: 40, Email: &email, Timeout: time.Minute},
		nil,
	}

	t.Run("declared order", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := WriteObjects[*person](&buf, nil)
		require.NoError(t, err)
		for _, p := range people {
			require.NoError(t, w.Write(p))
		}
		require.NoError(t, w.Close())
		assert.Equal(t,
			"name,age,email,active,timeout,seen\r\n"+
				"ann,,,,,\r\n"+
				"bob,40,bob@example.com,,1m0s,\r\n"+
				",,,,,\r\n",
			buf.String())
	})

	t.Run("minimized", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := WriteObjects[*person](&buf, nil, WithMinimize(true))
		require.NoError(t, err)
		for _, p := range people[:2] {
			require.NoError(t, w.Write(p))
		}
		require.NoError(t, w.Close())
		assert.Equal(t, "name,age,email,timeout\r\nann,,,\r\nbob,40,bob@example.com,1m0s\r\n", buf.String())

		r, err := ReadObjects[person](&buf, nil, nil)
		require.NoError(t, err)
		var back []person
		for p, err := range r.All() {
			require.NoError(t, err)
			back = append(back, p)
		}
		require.Len(t, back, 2)
		assert.Equal(t, "ann", back[0].Name)
		assert.Nil(t, back[0].Email)
		assert.Equal(t, 40, back[1].Age)
		assert.Equal(t, time.Minute, back[1].Timeout)
	})

	t.Run("extras raise", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := WriteObjects[*person](&buf, nil, WithExtrasAction(ExtrasRaise))
		require.NoError(t, err)
		assert.ErrorIs(t, w.Write(people[0]), ErrUnknownFields)
		require.NoError(t, w.Write(people[1]))
		require.NoError(t, w.Close())
	})
}

func TestWriteObjectsFieldGetter(t *testing.T) {
	var buf bytes.Buffer
	w, err := WriteObjects[*bag](&buf, []string{"x", "y"}, WithRestVal("?"))
	require.NoError(t, err)
	require.NoError(t, w.Write(&bag{values: map[string]string{"y": "2", "z": "3"}}))
	require.NoError(t, w.Close())
	assert.Equal(t, "x,y\r\n?,2\r\n", buf.String())

	_, err = WriteObjects[*bag](&buf, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestReadObjectsEmptyTextValue(t *testing.T) {
	r, err := ReadObjects[event](strings.NewReader("name,when,code\nx,,\ny,2026-01-15T09:30:00Z,C-7\n"), nil, nil)
	require.NoError(t, err)

	var got []event
	for e, err := range r.All() {
		require.NoError(t, err)
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.True(t, got[0].When.IsZero())
	assert.Equal(t, code{}, got[0].Code)
	assert.Equal(t, time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC), got[1].When)
	assert.Equal(t, code{v: "7"}, got[1].Code)
}

func TestWriteObjectsValueRecords(t *testing.T) {
	at := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	w, err := WriteObjects[event](&buf, nil, WithMinimize(true))
	require.NoError(t, err)
	require.NoError(t, w.Write(event{Name: "x", When: at, Code: code{v: "7"}}))
	require.NoError(t, w.Write(event{Name: "y", When: at, Code: code{v: "8"}}))
	require.NoError(t, w.Close())
	assert.Equal(t, "name,when,code\r\nx,2026-01-15T09:30:00Z,C-7\r\ny,2026-01-15T09:30:00Z,C-8\r\n", buf.String())

	r, err := ReadObjects[event](&buf, nil, nil)
	require.NoError(t, err)
	back, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, event{Name: "x", When: at, Code: code{v: "7"}}, back)
	require.NoError(t, r.Close())
}
