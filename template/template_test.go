package template

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "name": "申請書",
  "fieldPositions": {
    "f-zeta": {"id": "f-zeta", "type": "text", "label": "氏名", "x": 10, "y": 20, "width": 100, "height": 30, "size": 12},
    "f-alpha": {"id": "f-alpha", "type": "circle", "label": "丸1", "x": 50.123, "y": 60.456, "width": 30, "height": 30, "value": true,
                "dataSourceType": "datetime", "dataSource": "日付", "dataPart": "circle-reiwa"},
    "f-mid": {"type": "textarea", "label": "備考", "x": 0, "y": 0, "width": 300, "height": 150, "size": 10.5, "value": "メモ",
              "autoFill": {"sourceId": "q1", "rules": [{"key": "は", "value": "承認"}]}}
  },
  "questions": [
    {"id": "q1", "title": "同意", "type": "radio", "choices": [{"name": "はい", "fieldId": "f-alpha"}]}
  ]
}`

func TestDecodeJSONPreservesOrder(t *testing.T) {
	tpl, err := Decode(strings.NewReader(sampleJSON), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"f-zeta", "f-alpha", "f-mid"}, tpl.Fields.IDs())

	mid, ok := tpl.Fields.Get("f-mid")
	require.True(t, ok)
	assert.Equal(t, "f-mid", mid.ID, "缺省 id 取键名")
	assert.Equal(t, FieldTextarea, mid.Type)
	assert.Equal(t, "メモ", mid.Value.Text())

	alpha, _ := tpl.Fields.Get("f-alpha")
	assert.Equal(t, SourceDatetime, alpha.DataSourceType)
	assert.True(t, alpha.Value.IsBool())
	assert.True(t, alpha.Value.Bool())

	q, ok := tpl.Question("q1")
	require.True(t, ok)
	assert.Equal(t, QuestionRadio, q.Type)
}

func TestFieldOrderRoundTrip(t *testing.T) {
	tpl, err := Decode(strings.NewReader(sampleJSON), FormatJSON)
	require.NoError(t, err)

	for _, format := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, tpl, format), format.String())
		back, err := Decode(&buf, format)
		require.NoError(t, err, format.String())
		assert.Equal(t, tpl.Fields.IDs(), back.Fields.IDs(), format.String())

		alpha, _ := back.Fields.Get("f-alpha")
		assert.Equal(t, 50.12, alpha.X, "保存时保留两位小数")
		assert.Equal(t, 60.46, alpha.Y)
		assert.True(t, alpha.Value.Bool())

		mid, _ := back.Fields.Get("f-mid")
		want, _ := tpl.Fields.Get("f-mid")
		if diff := cmp.Diff(want.AutoFill, mid.AutoFill); diff != "" {
			t.Fatalf("%s autoFill mismatch (-want +got):\n%s", format, diff)
		}
	}
}

func TestEncodeOmitsUnsetValue(t *testing.T) {
	tpl := &Template{Fields: NewFieldSet(Field{ID: "a", Type: FieldText, Label: "a", Width: 1, Height: 1})}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tpl, FormatJSON))
	assert.NotContains(t, buf.String(), `"value"`)
	assert.NotContains(t, buf.String(), `"dataSourceType"`)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		`{"fieldPositions": []}`,
		`{"fieldPositions": {"a": {"type": "star", "width": 1, "height": 1}}}`,
		`{"fieldPositions": {"a": {"type": "text", "dataSourceType": "magic", "width": 1, "height": 1}}}`,
		`not json`,
	}
	for _, c := range cases {
		_, err := Decode(strings.NewReader(c), FormatJSON)
		assert.ErrorIs(t, err, ErrMalformed, c)
	}
}

func TestValidate(t *testing.T) {
	tpl := &Template{
		Fields: NewFieldSet(
			Field{ID: "a", Type: FieldText, Width: 0, Height: 10},
			Field{ID: "b", Type: FieldText, Width: 10, Height: 10, DataSourceType: SourcePhoneSplit},
			Field{ID: "c", Type: FieldText, Width: 10, Height: 10, AutoFill: &AutoFill{SourceID: "c"}},
			Field{ID: "d", Type: FieldText, Width: 10, Height: 10, AutoFill: &AutoFill{SourceID: "missing"}},
		),
	}
	err := tpl.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	msg := err.Error()
	assert.Contains(t, msg, "字段 a 的宽高必须大于 0")
	assert.Contains(t, msg, "缺少 dataSource")
	assert.Contains(t, msg, "引用了自身")
	assert.Contains(t, msg, "不存在的 missing")
}

func TestValidateAutoFillCycle(t *testing.T) {
	tpl := &Template{
		Fields: NewFieldSet(
			Field{ID: "x", Type: FieldText, Width: 10, Height: 10, AutoFill: &AutoFill{SourceID: "y"}},
			Field{ID: "y", Type: FieldCheck, Width: 10, Height: 10, AutoFill: &AutoFill{SourceID: "q"}},
		),
		Questions: []Question{{ID: "q", Title: "Q", Choices: []Choice{{Name: "A", FieldID: "x"}}}},
	}
	err := tpl.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "x -> y -> x")
}

func TestAutoFillMatchFirstRuleWins(t *testing.T) {
	af := &AutoFill{Rules: []Rule{{Key: "東京", Value: "A"}, {Key: "東", Value: "B"}}}
	v, ok := af.Match("東京都")
	assert.True(t, ok)
	assert.Equal(t, "A", v)
	_, ok = af.Match("大阪府")
	assert.False(t, ok)
	var none *AutoFill
	_, ok = none.Match("x")
	assert.False(t, ok)
}

func TestFieldSetMutation(t *testing.T) {
	s := NewFieldSet(Field{ID: "a"}, Field{ID: "b"}, Field{ID: "c"})
	clone := s.Clone()
	require.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))
	s.Set(Field{ID: "a", Label: "changed"})
	assert.Equal(t, []string{"a", "c"}, s.IDs())
	assert.Equal(t, []string{"a", "b", "c"}, clone.IDs(), "副本不受影响")
	orig, _ := clone.Get("a")
	assert.Equal(t, "", orig.Label)
}

func TestDecodeAnswers(t *testing.T) {
	in := `{"氏名": ["山田"], "年齢": 30, "同意": "はい", "空": null, "複数": ["A", "B"], "真": true}`
	a, err := DecodeAnswers(strings.NewReader(in), FormatJSON)
	require.NoError(t, err)
	want := Answers{"氏名": {"山田"}, "年齢": {"30"}, "同意": {"はい"}, "複数": {"A", "B"}, "真": {"true"}}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Fatalf("answers mismatch (-want +got):\n%s", diff)
	}

	y := "氏名:\n  - 山田\n日付: 2023-05-01T10:00:00\n空: null\n"
	a, err = DecodeAnswers(strings.NewReader(y), FormatYAML)
	require.NoError(t, err)
	v, ok := a.First("日付")
	assert.True(t, ok)
	assert.Equal(t, "2023-05-01T10:00:00", v)
	_, ok = a.First("空")
	assert.False(t, ok)

	_, err = DecodeAnswers(strings.NewReader(`{"a": {"b": 1}}`), FormatJSON)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "form.json")
	require.NoError(t, os.WriteFile(src, []byte(sampleJSON), 0o644))

	tpl, err := Load(src)
	require.NoError(t, err)
	assert.Equal(t, "申請書", tpl.Name)

	dst := filepath.Join(dir, "form.yaml")
	require.NoError(t, Save(dst, tpl))
	back, err := Load(dst)
	require.NoError(t, err)
	assert.Equal(t, tpl.Fields.IDs(), back.Fields.IDs())

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveAnswersRoundTrip(t *testing.T) {
	want := Answers{"氏名": {"山田"}, "日付": {"2023-05-01T10:00:00"}, "複数": {"A", "B"}, "数": {"30"}}
	for _, name := range []string{"answers.json", "answers.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, SaveAnswers(path, want))
		got, err := LoadAnswers(path)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}
