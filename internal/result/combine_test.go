package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine_MergesAdjacentPlainText(t *testing.T) {
	in := []Result{
		Stream{Order: 1, Mime: MimeTextPlain, Data: "a"},
		Stream{Order: 2, Mime: MimeTextPlain, Data: "b"},
		Image{Order: 3, Mime: MimeImageFilename, Name: "plot.png", URL: "http://k/files/plot.png"},
		Stream{Order: 4, Mime: MimeTextPlain, Data: "c"},
	}

	got := Combine(in)

	require.Len(t, got, 3)
	assert.Equal(t, Stream{Order: 0, Mime: MimeTextPlain, Data: "ab"}, got[0])
	assert.Equal(t, Image{Order: 1, Mime: MimeImageFilename, Name: "plot.png", URL: "http://k/files/plot.png"}, got[1])
	assert.Equal(t, Stream{Order: 2, Mime: MimeTextPlain, Data: "c"}, got[2])
}

func TestCombine_JoinsHTMLWithLineBreak(t *testing.T) {
	got := Combine([]Result{
		Stream{Order: 1, Mime: MimeTextHTML, Data: "<b>x</b>"},
		Stream{Order: 2, Mime: MimeTextHTML, Data: "<i>y</i>"},
		Stream{Order: 3, Mime: MimeTextPlain, Data: "z"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "<b>x</b><br/><i>y</i>", got[0].(Stream).Data)
	assert.Equal(t, "z", got[1].(Stream).Data)
}

func TestCombine_DoesNotMergeAcrossMimeTypes(t *testing.T) {
	got := Combine([]Result{
		Stream{Order: 1, Mime: MimeTextPlain, Data: "a"},
		Stream{Order: 2, Mime: MimeTextHTML, Data: "<p>b</p>"},
		Stream{Order: 3, Mime: MimeTextPlain, Data: "c"},
	})

	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, i, r.Position())
	}
}

func TestCombine_NeverMergesInlineImages(t *testing.T) {
	got := Combine([]Result{
		Stream{Order: 1, Mime: MimeImagePNG, Data: "iVBO1"},
		Stream{Order: 2, Mime: MimeImagePNG, Data: "iVBO2"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "iVBO1", got[0].(Stream).Data)
	assert.Equal(t, "iVBO2", got[1].(Stream).Data)
}

func TestCombine_ErrorBreaksRun(t *testing.T) {
	got := Combine([]Result{
		Stream{Order: 1, Mime: MimeTextPlain, Data: "before"},
		Error{Order: 2, EName: "ValueError", EValue: "bad", Traceback: "tb"},
		Stream{Order: 3, Mime: MimeTextPlain, Data: "after"},
	})

	require.Len(t, got, 3)
	assert.Equal(t, KindError, got[1].Kind())
	assert.Equal(t, MimeTraceback, got[1].MimeType())
}

func TestCombine_Idempotent(t *testing.T) {
	in := []Result{
		Stream{Order: 1, Mime: MimeTextHTML, Data: "x"},
		Stream{Order: 2, Mime: MimeTextHTML, Data: "y"},
		Stream{Order: 5, Mime: MimeTextPlain, Data: "1"},
		Stream{Order: 6, Mime: MimeTextPlain, Data: "2"},
		Error{Order: 7, EName: "E"},
	}

	once := Combine(in)
	twice := Combine(once)

	assert.Equal(t, once, twice)
}

func TestCombine_Empty(t *testing.T) {
	assert.Empty(t, Combine(nil))
}

func TestSortByPosition(t *testing.T) {
	rs := []Result{
		Stream{Order: 3, Data: "c"},
		Error{Order: 1},
		Image{Order: 2},
	}

	SortByPosition(rs)

	assert.Equal(t, []int{1, 2, 3}, []int{rs[0].Position(), rs[1].Position(), rs[2].Position()})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "stream", KindStream.String())
	assert.Equal(t, "image", KindImage.String())
	assert.Equal(t, "error", KindError.String())
}
