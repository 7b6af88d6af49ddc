package dakota

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/NOT-REAL-GAMES/dakota/device"
	"github.com/NOT-REAL-GAMES/dakota/dom"
)

func TestLoadSceneXMLMinimalDocument(t *testing.T) {
	doc := `<window title="t" width="100" height="100"><el width="100" height="100"/></window>`
	s, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	require.NoError(t, err)

	root, ok := s.Root()
	require.True(t, ok)

	width, ok := s.widths.Get(root)
	require.True(t, ok)
	assert.False(t, width.IsRelative())
	assert.Equal(t, int32(100), width.GetValue(0))

	height, ok := s.heights.Get(root)
	require.True(t, ok)
	assert.False(t, height.IsRelative())
	assert.Equal(t, int32(100), height.GetValue(0))
}

func TestLoadSceneXMLRejectsAbsoluteOffset(t *testing.T) {
	doc := `<window><el offsetX="10" offsetY="10"/></window>`
	_, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	assert.ErrorIs(t, err, device.ErrInvalidDocument)
}

func TestLoadSceneXMLRelativeOffset(t *testing.T) {
	doc := `<window><el relOffsetX="0.25" relOffsetY="0.5"/></window>`
	s, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	require.NoError(t, err)

	root, _ := s.Root()
	rel, ok := s.offsets.Get(root)
	require.True(t, ok)
	assert.Equal(t, dom.RelativeOffset{X: 0.25, Y: 0.5}, rel)
}

func TestLoadSceneXMLRelativeOffsetOutOfRangeRejected(t *testing.T) {
	doc := `<window><el relOffsetX="1.5"/></window>`
	_, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	assert.ErrorIs(t, err, device.ErrInvalidDocument)
}

func TestLoadSceneXMLColorResource(t *testing.T) {
	doc := `<window>
		<resources>
			<resource name="bg" color="0.1,0.2,0.3,1.0"/>
		</resources>
		<el resource="bg" width="10" height="10"/>
	</window>`
	s, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	require.NoError(t, err)

	root, _ := s.Root()
	res, ok := s.resources.Get(root)
	require.True(t, ok)
	assert.True(t, s.IsResourceDefined(res))

	color, ok := s.resourceColors.Get(res)
	require.True(t, ok)
	assert.InDelta(t, 0.1, color.R, 0.0001)
	assert.InDelta(t, 0.2, color.G, 0.0001)
	assert.InDelta(t, 0.3, color.B, 0.0001)
	assert.Equal(t, float32(1.0), color.A)
}

func TestLoadSceneXMLUndefinedResourceRejected(t *testing.T) {
	doc := `<window><el resource="missing"/></window>`
	_, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	assert.ErrorIs(t, err, device.ErrInvalidDocument)
}

func TestLoadSceneXMLTextRunsAndChildren(t *testing.T) {
	doc := `<window>
		<el name="root">
			<el><text><p>hello</p><b>world</b></text></el>
		</el>
	</window>`
	s, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	require.NoError(t, err)

	root, ok := s.ElementByName("root")
	require.True(t, ok)

	kids, _ := s.children.Get(root)
	require.Len(t, kids, 1)

	text, ok := s.texts.Get(kids[0])
	require.True(t, ok)
	require.Len(t, text.Items, 2)
	assert.Equal(t, dom.TextRunParagraph, text.Items[0].Kind)
	assert.Equal(t, "hello", text.Items[0].Value)
	assert.Equal(t, dom.TextRunBold, text.Items[1].Kind)
	assert.Equal(t, "world", text.Items[1].Value)
}

func TestLoadSceneXMLMissingRootRejected(t *testing.T) {
	doc := `<window></window>`
	_, err := LoadSceneXML(strings.NewReader(doc), nil, nil, goregular.TTF, 16)
	assert.True(t, errors.Is(err, errNoRootElement))
}
