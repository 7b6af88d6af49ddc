package draw

import (
	"github.com/NOT-REAL-GAMES/dakota/dom"
	"github.com/NOT-REAL-GAMES/dakota/ecs"
	"github.com/NOT-REAL-GAMES/dakota/font"
	"github.com/NOT-REAL-GAMES/dakota/layout"
)

// Tables is every component table the draw traversal reads, read-only for
// the duration of a Run (ground: mod.rs's RenderTransaction field list,
// `rt_*`).
type Tables struct {
	Resources      *ecs.Component[ecs.Entity] // element -> resource entity
	ResourceImages *ecs.Component[ecs.Entity] // resource -> renderer bindless image entity
	ResourceColors *ecs.Component[dom.Color]  // resource -> solid-fill color
	TextFont       *ecs.Component[ecs.Entity] // element -> font instance entity
	Viewports      *ecs.Component[layout.Viewport]
	Nodes          *ecs.Component[layout.Node]

	Fonts       map[ecs.Entity]*font.Instance
	DefaultFont ecs.Entity
	Glyphs      *GlyphCache
}

// transaction is a read-only snapshot view of Tables for the duration of
// one Run call (ground: mod.rs's RenderTransaction).
type transaction struct {
	resources      *ecs.Snapshot[ecs.Entity]
	resourceImages *ecs.Snapshot[ecs.Entity]
	resourceColors *ecs.Snapshot[dom.Color]
	textFont       *ecs.Snapshot[ecs.Entity]
	viewports      *ecs.Snapshot[layout.Viewport]
	nodes          *ecs.Snapshot[layout.Node]

	fonts       map[ecs.Entity]*font.Instance
	defaultFont ecs.Entity
	glyphs      *GlyphCache
}

func newTransaction(t *Tables) *transaction {
	return &transaction{
		resources:      t.Resources.Snapshot(),
		resourceImages: t.ResourceImages.Snapshot(),
		resourceColors: t.ResourceColors.Snapshot(),
		textFont:       t.TextFont.Snapshot(),
		viewports:      t.Viewports.Snapshot(),
		nodes:          t.Nodes.Snapshot(),
		fonts:          t.Fonts,
		defaultFont:    t.DefaultFont,
		glyphs:         t.Glyphs,
	}
}

func (t *transaction) commit() {
	t.resources.Commit()
	t.resourceImages.Commit()
	t.resourceColors.Commit()
	t.textFont.Commit()
	t.viewports.Commit()
	t.nodes.Commit()
}

func (t *transaction) fontForElement(el ecs.Entity) (ecs.Entity, *font.Instance) {
	fontID := t.defaultFont
	if id, ok := t.textFont.Get(el); ok {
		fontID = id
	}
	return fontID, t.fonts[fontID]
}
