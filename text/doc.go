// Package text rasterizes and lays out text runs through a paged glyph
// atlas.
//
// Fonts are registered by family name and addressed with CSS-like font
// strings ("16px sans"). Shaping goes through go-text/typesetting's
// HarfBuzz implementation; rasterization uses golang.org/x/image's
// opentype renderer to produce single-channel alpha masks that are
// packed into fixed-size atlas pages.
//
// Packing is deliberately simple: a row cursor advances left-to-right
// with 2px padding, wraps to a new row when a glyph would exceed the
// page width, and resets the whole page when it would exceed the page
// height. A reset invalidates every glyph on the page; they are
// re-rasterized on next use. The eviction counter in AtlasStats exposes
// the churn this causes.
package text
