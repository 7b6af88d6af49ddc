package layout

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
	"github.com/NOT-REAL-GAMES/dakota/font"
)

// Tables is every component table the layout engine reads or writes,
// owned by the caller (ground: mod.rs's LayoutTransaction field list,
// `lt_*`).
type Tables struct {
	Instance    *ecs.Instance // allocates the glyph child entities text layout creates

	Resources   *ecs.Component[ecs.Entity]          // element -> resource entity
	ImageSizes  *ecs.Component[dom.Size[int32]]     // resource entity -> intrinsic image size
	Viewports   *ecs.Component[Viewport]             // presence tags an element as a scroll viewport
	Contents    *ecs.Component[ecs.Entity]            // element -> centered content child
	Widths      *ecs.Component[dom.Value]
	Heights     *ecs.Component[dom.Value]
	Offsets     *ecs.Component[dom.RelativeOffset]
	Children    *ecs.Component[[]ecs.Entity]
	Texts       *ecs.Component[dom.Text]
	TextFont    *ecs.Component[ecs.Entity]            // element -> font instance entity
	Nodes       *ecs.Component[Node]
	Fonts       map[ecs.Entity]*font.Instance
	DefaultFont ecs.Entity
}

// Viewport marks an element as a scrolling/clipping boundary; its presence
// is what get_final_size checks to decide whether an element should be
// size-to-children.
type Viewport struct {
	ScrollRegion dom.Size[int32]
	ScrollOffset dom.Offset[int32]
}

// transaction is a read/write overlay of every table in Tables, committed
// atomically at the end of a successful Run (ground: mod.rs's
// LayoutTransaction, §4.6.3 of the expanded spec).
type transaction struct {
	instance *ecs.Instance

	resources  *ecs.Snapshot[ecs.Entity]
	imageSizes *ecs.Snapshot[dom.Size[int32]]
	viewports  *ecs.Snapshot[Viewport]
	contents   *ecs.Snapshot[ecs.Entity]
	widths     *ecs.Snapshot[dom.Value]
	heights    *ecs.Snapshot[dom.Value]
	offsets    *ecs.Snapshot[dom.RelativeOffset]
	children   *ecs.Snapshot[[]ecs.Entity]
	texts      *ecs.Snapshot[dom.Text]
	textFont   *ecs.Snapshot[ecs.Entity]
	nodes      *ecs.Snapshot[Node]

	fonts       map[ecs.Entity]*font.Instance
	defaultFont ecs.Entity
}

// Run lays out root against the given available space, committing every
// touched table on success. A failure leaves every table untouched
// (ground: mod.rs's Dakota::layout, with the commit ordering from
// §4.6.3).
func Run(t *Tables, root ecs.Entity, space Space) error {
	trans := &transaction{
		instance:    t.Instance,
		resources:   t.Resources.Snapshot(),
		imageSizes:  t.ImageSizes.Snapshot(),
		viewports:   t.Viewports.Snapshot(),
		contents:    t.Contents.Snapshot(),
		widths:      t.Widths.Snapshot(),
		heights:     t.Heights.Snapshot(),
		offsets:     t.Offsets.Snapshot(),
		children:    t.Children.Snapshot(),
		texts:       t.Texts.Snapshot(),
		textFont:    t.TextFont.Snapshot(),
		nodes:       t.Nodes.Snapshot(),
		fonts:       t.Fonts,
		defaultFont: t.DefaultFont,
	}

	if err := trans.calculateSizes(root, space); err != nil {
		return err
	}
	trans.commit()
	return nil
}

func (t *transaction) commit() {
	t.resources.Commit()
	t.imageSizes.Commit()
	t.viewports.Commit()
	t.contents.Commit()
	t.widths.Commit()
	t.heights.Commit()
	t.offsets.Commit()
	t.children.Commit()
	t.texts.Commit()
	t.textFont.Commit()
	t.nodes.Commit()
}

func (t *transaction) fontForElement(el ecs.Entity) (ecs.Entity, *font.Instance) {
	fontID := t.defaultFont
	if id, ok := t.textFont.Get(el); ok {
		fontID = id
	}
	return fontID, t.fonts[fontID]
}

// getFinalOffset resolves the offset to use for el within space, from its
// RelativeOffset component if one was set, otherwise (0,0) (ground:
// mod.rs's get_final_offset).
func (t *transaction) getFinalOffset(el ecs.Entity, space Space) dom.Offset[int32] {
	rel, ok := t.offsets.Get(el)
	if !ok {
		rel = dom.RelativeOffset{X: 0, Y: 0}
	}
	return dom.Offset[int32]{
		X: int32(math32.Round(rel.X * float32(space.AvailWidth))),
		Y: int32(math32.Round(rel.Y * float32(space.AvailHeight))),
	}
}

func (t *transaction) getDefaultSizeVal(avail int32, resourceSize *int32, val *dom.Value) int32 {
	if val != nil {
		return val.GetValue(avail)
	}
	if resourceSize != nil {
		return *resourceSize
	}
	return avail
}

// getDefaultSize returns the size to use for el before any children have
// been accounted for: the user's explicit size, else the assigned image
// resource's intrinsic size, else the available parent space (ground:
// mod.rs's get_default_size).
func (t *transaction) getDefaultSize(el ecs.Entity, space Space) dom.Size[int32] {
	imageSize := func(isWidth bool) *int32 {
		res, ok := t.resources.Get(el)
		if !ok {
			return nil
		}
		size, ok := t.imageSizes.Get(res)
		if !ok {
			return nil
		}
		v := size.Width
		if !isWidth {
			v = size.Height
		}
		return &v
	}

	var widthVal, heightVal *dom.Value
	if v, ok := t.widths.Get(el); ok {
		widthVal = &v
	}
	if v, ok := t.heights.Get(el); ok {
		heightVal = &v
	}

	width := t.getDefaultSizeVal(space.AvailWidth, imageSize(true), widthVal)
	height := t.getDefaultSizeVal(space.AvailHeight, imageSize(false), heightVal)
	return dom.Size[int32]{Width: width, Height: height}
}

func (t *transaction) getChildSize(el ecs.Entity, isWidth bool, size int32) int32 {
	node, _ := t.nodes.Get(el)
	var extent int32
	if isWidth {
		extent = node.Offset.X + node.Size.Width
	} else {
		extent = node.Offset.Y + node.Size.Height
	}
	if extent > size {
		return extent
	}
	return size
}

// getFinalSize is the default size unless the element has no explicit
// size, no image resource, and unsized children to shrink-wrap (ground:
// mod.rs's get_final_size).
func (t *transaction) getFinalSize(el ecs.Entity, space Space) dom.Size[int32] {
	ret := t.getDefaultSize(el, space)

	isImageResource := false
	if res, ok := t.resources.Get(el); ok {
		if _, ok := t.imageSizes.Get(res); ok {
			isImageResource = true
		}
	}

	node, _ := t.nodes.Get(el)
	_, isViewport := t.viewports.Get(el)
	needsSizeToChild := !isViewport && !isImageResource && len(node.Children) > 0

	contentHasWidth, contentHasHeight := false, false
	if content, ok := t.contents.Get(el); ok {
		_, contentHasWidth = t.widths.Get(content)
		_, contentHasHeight = t.heights.Get(content)
	}

	if _, hasWidth := t.widths.Get(el); !hasWidth && needsSizeToChild && !contentHasWidth {
		ret.Width = 0
		for _, child := range node.Children {
			ret.Width = t.getChildSize(child, true, ret.Width)
		}
	}
	if _, hasHeight := t.heights.Get(el); !hasHeight && needsSizeToChild && !contentHasHeight {
		ret.Height = 0
		for _, child := range node.Children {
			ret.Height = t.getChildSize(child, false, ret.Height)
		}
	}
	return ret
}

// calculateSizesContent recurses into el's centered content child and
// positions it in the middle of el's box (ground: mod.rs's
// calculate_sizes_content).
func (t *transaction) calculateSizesContent(el ecs.Entity, space Space) error {
	child, _ := t.contents.Get(el)
	if err := t.calculateSizes(child, space); err != nil {
		return err
	}
	parentSize, _ := t.nodes.Get(el)
	childNode := t.nodes.GetMut(child)
	childNode.Offset.X = partialMax((parentSize.Size.Width-childNode.Size.Width)/2, 0)
	childNode.Offset.Y = partialMax((parentSize.Size.Height-childNode.Size.Height)/2, 0)

	node := t.nodes.GetMut(el)
	node.addChild(child)
	return nil
}

// calculateSizesChildren recurses into every child of el, then positions
// each one left-to-right, wrapping to a new row on overflow, unless its
// offset was user-specified (ground: mod.rs's calculate_sizes_children).
func (t *transaction) calculateSizesChildren(el ecs.Entity, space Space) error {
	children, ok := t.children.Get(el)
	if !ok {
		return fmt.Errorf("layout: expected children on element")
	}

	tile := tileInfo{}
	for _, child := range children {
		if err := t.calculateSizes(child, space); err != nil {
			return err
		}

		childNode := t.nodes.GetMut(child)
		if !childNode.OffsetSpecified {
			if int32(tile.lastX)+childNode.Size.Width > space.AvailWidth ||
				int32(tile.lastY)+childNode.Size.Height > space.AvailHeight {
				tile.lastX = 0
				tile.lastY = tile.greatestY
			}
			childNode.Offset = dom.Offset[int32]{X: int32(tile.lastX), Y: int32(tile.lastY)}
			tile.lastX += uint32(childNode.Size.Width)
			if greatest := tile.lastY + uint32(childNode.Size.Height); greatest > tile.greatestY {
				tile.greatestY = greatest
			}
		}


		node := t.nodes.GetMut(el)
		node.addChild(child)
	}
	return nil
}

// calculateSizesEl records el's initial Node: offset from its
// RelativeOffset (or (0,0)) and size from getDefaultSize (ground: mod.rs's
// calculate_sizes_el).
func (t *transaction) calculateSizesEl(el ecs.Entity, space Space) error {
	var node Node
	_, node.OffsetSpecified = t.offsets.Get(el)
	node.Offset = t.getFinalOffset(el, space)

	node.Size = t.getDefaultSize(el, space)

	t.nodes.Set(el, node)
	return nil
}

// calculateSizesText creates one glyph child Node per shaped glyph in
// el's text, laying them out with its assigned (or default) font instance
// (ground: mod.rs's calculate_sizes_text).
func (t *transaction) calculateSizesText(el ecs.Entity) error {
	if _, hasChildren := t.children.Get(el); hasChildren {
		return fmt.Errorf("layout: text elements cannot have children")
	}

	fontEntity, fontInst := t.fontForElement(el)
	if fontInst == nil {
		return fmt.Errorf("layout: no font instance available for text element")
	}
	lineSpace := fontInst.VerticalLineSpacing()

	text, ok := t.texts.Get(el)
	if !ok {
		return nil
	}
	node, _ := t.nodes.Get(el)
	cursor := font.Cursor{
		I:   0,
		X:   0,
		Y:   lineSpace,
		Min: float32(node.Offset.X),
		Max: float32(node.Offset.X + node.Size.Width),
	}

	for i := range text.Items {
		run := &text.Items[i]
		if run.Cache() == nil {
			trimmed := trimExcessSpace(run.Value) + " "
			run.SetCache(fontInst.InitializeCachedChars(trimmed))
		}
		cached := run.Cache().([]font.CachedChar)

		fontInst.LayoutText(&cursor, cached, func(curse *font.Cursor, ch font.CachedChar) {
			size := fontInst.GlyphSize(ch.GlyphID)
			childEntity := t.instance.CreateEntity()
			childNode := glyphNode(
				ch.GlyphID,
				dom.Offset[int32]{X: int32(curse.X) + int32(ch.Offset[0]), Y: int32(curse.Y) + int32(ch.Offset[1])},
				dom.Size[int32]{Width: int32(size.Width), Height: int32(size.Height)},
			)

			parent := t.nodes.GetMut(el)
			parent.addChild(childEntity)

			t.nodes.Set(childEntity, childNode)
			t.textFont.Set(childEntity, fontEntity)
		})
	}
	t.texts.Set(el, text)
	return nil
}

// calculateSizes is the recursive entry point: size this element, then its
// text or children or centered content, then shrink-to-fit the final size
// (ground: mod.rs's calculate_sizes).
func (t *transaction) calculateSizes(el ecs.Entity, space Space) error {
	if err := t.calculateSizesEl(el, space); err != nil {
		return err
	}

	node, _ := t.nodes.Get(el)
	childSpace := Space{AvailWidth: node.Size.Width, AvailHeight: node.Size.Height}

	if _, hasText := t.texts.Get(el); hasText {
		if err := t.calculateSizesText(el); err != nil {
			return err
		}
	}

	if children, ok := t.children.Get(el); ok && len(children) > 0 {
		if err := t.calculateSizesChildren(el, childSpace); err != nil {
			return err
		}
	}

	if _, ok := t.contents.Get(el); ok {
		// re-read in case calculateSizesChildren updated the node's size
		node, _ = t.nodes.Get(el)
		childSpace = Space{AvailWidth: node.Size.Width, AvailHeight: node.Size.Height}
		if err := t.calculateSizesContent(el, childSpace); err != nil {
			return err
		}
	}

	final := t.getFinalSize(el, space)
	updated := t.nodes.GetMut(el)
	updated.Size = final
	return nil
}

// trimExcessSpace collapses runs of whitespace down to single spaces and
// trims the ends, so multi-line source text wraps the same way regardless
// of the document's own indentation.
func trimExcessSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func partialMax(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
