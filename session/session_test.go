package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/layout"
	"github.com/ByLCY/formstamp/template"
)

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("f%d", n)
	})
}

func TestAddFieldUsesLastSizeAndCounter(t *testing.T) {
	s := New(nil, sequentialIDs())
	f, err := s.AddField(template.FieldText, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "テキスト1", f.Label)
	assert.Equal(t, 50.0, f.X)
	assert.Equal(t, 85.0, f.Y)
	assert.Equal(t, 21.0, f.Size)

	require.NoError(t, s.Resize(f.ID, 3, 40))
	got, _ := s.Template().Fields.Get(f.ID)
	assert.Equal(t, MinSize, got.Width, "宽度不得小于下限")
	assert.Equal(t, 40.0, got.Height)

	g, err := s.AddField(template.FieldText, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "テキスト2", g.Label)
	assert.Equal(t, Size{Width: MinSize, Height: 40, Size: 21}, s.LastSize(template.FieldText))
	assert.Equal(t, MinSize, g.Width)

	c, err := s.AddField(template.FieldCheck, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "チェック3", c.Label)
	assert.Equal(t, 30.0, c.Width)
}

func TestCounterResumesFromLabels(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "a", Type: template.FieldText, Label: "テキスト7", Width: 1, Height: 1},
		template.Field{ID: "b", Type: template.FieldCircle, Label: "丸12", Width: 1, Height: 1},
		template.Field{ID: "c", Type: template.FieldCircle, Label: "氏名", Width: 1, Height: 1},
	)}
	s := New(tpl, sequentialIDs())
	f, err := s.AddField(template.FieldTextarea, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "文章欄13", f.Label)
}

func TestSessionDoesNotMutateInput(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "a", Type: template.FieldText, Label: "A", X: 1, Y: 1, Width: 10, Height: 10},
	)}
	s := New(tpl)
	require.NoError(t, s.Move("a", 50, 60))
	orig, _ := tpl.Fields.Get("a")
	assert.Equal(t, 1.0, orig.X)
}

func TestUndoRestoresSnapshots(t *testing.T) {
	s := New(nil, sequentialIDs())
	f, err := s.AddField(template.FieldCircle, 15, 15)
	require.NoError(t, err)
	before := s.Template()
	require.NoError(t, s.Move(f.ID, 100, 100))
	moved, _ := s.Template().Fields.Get(f.ID)
	assert.Equal(t, 100.0, moved.X)

	kept, _ := before.Fields.Get(f.ID)
	assert.Equal(t, 0.0, kept.X, "旧快照不应被修改")

	require.NoError(t, s.Undo())
	assert.Same(t, before, s.Template())
	require.NoError(t, s.Undo())
	assert.Equal(t, 0, s.Template().Fields.Len())
	assert.ErrorIs(t, s.Undo(), ErrNothingToUndo)
}

func TestFailedEditLeavesHistoryUntouched(t *testing.T) {
	s := New(nil)
	err := s.Move("missing", 1, 1)
	assert.ErrorIs(t, err, ErrNoField)
	assert.Equal(t, 0, s.UndoDepth())
}

func TestHistoryIsBounded(t *testing.T) {
	s := New(nil, sequentialIDs())
	f, err := s.AddField(template.FieldCheck, 0, 0)
	require.NoError(t, err)
	for i := 0; i < HistoryLimit+20; i++ {
		require.NoError(t, s.Move(f.ID, float64(i), 0))
	}
	assert.Equal(t, HistoryLimit, s.UndoDepth())
	for i := 0; i < HistoryLimit; i++ {
		require.NoError(t, s.Undo())
	}
	assert.ErrorIs(t, s.Undo(), ErrNothingToUndo)
	got, ok := s.Template().Fields.Get(f.ID)
	require.True(t, ok, "最旧的快照已被丢弃，仍应包含字段")
	assert.Equal(t, float64(19), got.X)
}

func TestGroupFieldsReadingOrder(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "c", Type: template.FieldText, X: 10, Y: 50, Width: 10, Height: 10},
		template.Field{ID: "b", Type: template.FieldText, X: 40, Y: 3, Width: 10, Height: 10},
		template.Field{ID: "a", Type: template.FieldText, X: 20, Y: 0, Width: 10, Height: 10},
	)}
	s := New(tpl)
	require.NoError(t, s.GroupFields(template.SourcePhoneSplit, "電話番号", []string{"c", "b", "a"}))

	want := map[string]struct{ part, label string }{
		"a": {"split_0", "電話番号[0]"},
		"b": {"split_1", "電話番号[1]"},
		"c": {"split_2", "電話番号[2]"},
	}
	for id, w := range want {
		f, _ := s.Template().Fields.Get(id)
		assert.Equal(t, w.part, f.DataPart, id)
		assert.Equal(t, w.label, f.Label, id)
		assert.Equal(t, template.SourcePhoneSplit, f.DataSourceType)
		assert.Equal(t, "電話番号", f.DataSource)
	}

	require.NoError(t, s.GroupFields(template.SourceDuplicate, "氏名", []string{"a", "b"}))
	a, _ := s.Template().Fields.Get("a")
	assert.Equal(t, template.SourceDuplicate, a.DataSourceType)
	assert.Equal(t, "split_0", a.DataPart, "duplicate 分组不改动 dataPart")

	assert.Error(t, s.GroupFields(template.SourceCharSplit, "x", []string{"a"}))
	assert.Error(t, s.GroupFields(template.SourceDatetime, "x", []string{"a", "b"}))
	assert.Error(t, s.GroupFields(template.SourceCharSplit, " ", []string{"a", "b"}))
}

func TestGroupFieldsRowsAnchorOnFirstField(t *testing.T) {
	// q 与 p、r 的 y 差都在容差内，但 r 与行首 p 相差 16，应另起一行
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "p", Type: template.FieldText, X: 50, Y: 0, Width: 10, Height: 10},
		template.Field{ID: "q", Type: template.FieldText, X: 10, Y: 8, Width: 10, Height: 10},
		template.Field{ID: "r", Type: template.FieldText, X: 5, Y: 16, Width: 10, Height: 10},
		template.Field{ID: "s", Type: template.FieldText, X: 0, Y: 30, Width: 10, Height: 10},
	)}
	for _, ids := range [][]string{{"p", "q", "r", "s"}, {"s", "r", "q", "p"}, {"r", "p", "s", "q"}} {
		s := New(tpl)
		require.NoError(t, s.GroupFields(template.SourcePhoneSplit, "電話番号", ids))
		for i, id := range []string{"q", "p", "r", "s"} {
			f, _ := s.Template().Fields.Get(id)
			assert.Equal(t, fmt.Sprintf("split_%d", i), f.DataPart, "%v: %s", ids, id)
		}
	}
}

func TestGroupDatetime(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "y", Type: template.FieldText, Width: 10, Height: 10},
		template.Field{ID: "era", Type: template.FieldCircle, Width: 10, Height: 10},
	)}
	s := New(tpl)
	require.NoError(t, s.GroupDatetime("日付", map[string]string{"y": "year-wareki", "era": "circle-reiwa"}))
	y, _ := s.Template().Fields.Get("y")
	assert.Equal(t, "year-wareki", y.DataPart)
	assert.Equal(t, template.SourceDatetime, y.DataSourceType)

	depth := s.UndoDepth()
	assert.Error(t, s.GroupDatetime("日付", map[string]string{"y": "char_0"}))
	assert.Equal(t, depth, s.UndoDepth())

	require.NoError(t, s.Ungroup("y"))
	y, _ = s.Template().Fields.Get("y")
	assert.Empty(t, y.DataSource)
	assert.Equal(t, template.SourceNone, y.DataSourceType)
}

func TestDuplicate(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "a", Type: template.FieldCircle, Label: "丸2", X: 10, Y: 10, Width: 30, Height: 20},
		template.Field{ID: "b", Type: template.FieldCircle, Label: "丸5", Width: 30, Height: 20},
		template.Field{ID: "n", Type: template.FieldText, Label: "氏名", Width: 30, Height: 20},
	)}
	s := New(tpl, sequentialIDs())
	d, err := s.Duplicate("a", Right)
	require.NoError(t, err)
	assert.Equal(t, "丸6", d.Label)
	assert.Equal(t, 45.0, d.X)
	assert.Equal(t, 10.0, d.Y)

	d, err = s.Duplicate("a", Above)
	require.NoError(t, err)
	assert.Equal(t, -15.0, d.Y)

	d, err = s.Duplicate("n", Below)
	require.NoError(t, err)
	assert.Equal(t, "氏名_copy", d.Label)
}

func TestDeleteClearsDanglingAutoFill(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "src", Type: template.FieldText, Width: 10, Height: 10},
		template.Field{ID: "dst", Type: template.FieldText, Width: 10, Height: 10},
	)}
	s := New(tpl)
	require.NoError(t, s.SetAutoFill("dst", "src", []template.Rule{{Key: " 東京 ", Value: "13"}, {Key: "", Value: "x"}}))
	dst, _ := s.Template().Fields.Get("dst")
	require.NotNil(t, dst.AutoFill)
	assert.Equal(t, []template.Rule{{Key: "東京", Value: "13"}}, dst.AutoFill.Rules)

	require.NoError(t, s.Delete("src"))
	dst, _ = s.Template().Fields.Get("dst")
	assert.Nil(t, dst.AutoFill)
	assert.NoError(t, s.Template().Validate())
}

func TestSetAutoFillRejectsCycle(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "a", Type: template.FieldText, Width: 10, Height: 10},
		template.Field{ID: "b", Type: template.FieldText, Width: 10, Height: 10},
	)}
	s := New(tpl)
	require.NoError(t, s.SetAutoFill("a", "b", nil))
	err := s.SetAutoFill("b", "a", nil)
	assert.ErrorIs(t, err, template.ErrInvalid)
	assert.ErrorIs(t, s.SetAutoFill("a", "a", nil), template.ErrInvalid)
	assert.Equal(t, 1, s.UndoDepth())
}

func TestQuestions(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "yes", Type: template.FieldCircle, Width: 10, Height: 10},
	)}
	s := New(tpl)
	q := template.Question{ID: "q1", Title: "同意", Choices: []template.Choice{{Name: "はい", FieldID: "yes"}}}
	require.NoError(t, s.SetQuestion(q))
	q.Title = "同意しますか"
	require.NoError(t, s.SetQuestion(q))
	require.Len(t, s.Template().Questions, 1)
	assert.Equal(t, "同意しますか", s.Template().Questions[0].Title)

	assert.ErrorIs(t, s.SetQuestion(template.Question{ID: "yes"}), template.ErrInvalid)
	require.NoError(t, s.DeleteQuestion("q1"))
	assert.Empty(t, s.Template().Questions)
	assert.Error(t, s.DeleteQuestion("q1"))
}

func TestPreviewMatchesBatchLayout(t *testing.T) {
	tpl := &template.Template{
		Page: &template.PageSize{Width: 500, Height: 700},
		Fields: template.NewFieldSet(
			template.Field{ID: "name", Type: template.FieldText, Label: "氏名", X: 10, Y: 10, Width: 100, Height: 20},
		),
	}
	s := New(tpl)
	answers := template.Answers{"氏名": {"山田"}}
	got, err := s.Preview(answers, PreviewOptions{})
	require.NoError(t, err)

	res, err := binding.Resolve(s.Template(), answers, binding.Options{})
	require.NoError(t, err)
	want, err := layout.Build(s.Template(), res, layout.BuildOptions{PageWidth: 500, PageHeight: 700})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.Len(t, got.Objects, 1)
	assert.Equal(t, 700.0-10-14, got.Objects[0].Y)
}
