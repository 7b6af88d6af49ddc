package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantValue(t *testing.T) {
	v := Constant(42)
	assert.False(t, v.IsRelative())
	assert.Equal(t, int32(42), v.GetValue(1000))
}

func TestRelativeValue(t *testing.T) {
	v := Relative(0.25)
	assert.True(t, v.IsRelative())
	assert.Equal(t, int32(25), v.GetValue(100))
	assert.Equal(t, int32(50), v.GetValue(200))
}

func TestRelativeValuePanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { Relative(1.0) })
	assert.Panics(t, func() { Relative(-0.1) })
}

func TestTextRunCache(t *testing.T) {
	run := TextRun{Kind: TextRunParagraph, Value: "hi"}
	assert.Nil(t, run.Cache())

	run.SetCache([]int{1, 2, 3})
	assert.Equal(t, []int{1, 2, 3}, run.Cache())
}
