package editor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/inkpress/internal/format"
)

func TestPluginRegistersFormats(t *testing.T) {
	t.Parallel()
	reg := format.NewRegistry()
	p := New(reg)
	require.NoError(t, p.Activate(context.Background()))
	assert.Equal(t, []string{"markdown", "text", "wiki", "xhtml"}, reg.Names())

	out, err := reg.Format(Markdown, "# Title\n\nSome *emphasis* and a [link](http://x.test).\n\n<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<em>emphasis</em>")
	assert.Contains(t, out, `<a href="http://x.test"`)
	assert.NotContains(t, out, "<script>")

	out, err = reg.Format(Markdown, "| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")

	require.NoError(t, p.Deactivate(context.Background()))
	assert.Equal(t, []string{"text", "xhtml"}, reg.Names())
}

func TestWikiToXHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, in, want string
	}{
		{"paragraphs", "one\ntwo\n\nthree", "<p>one<br />two</p>\n<p>three</p>"},
		{"headings", "!!! Big\n!! Mid\n! Small", "<h3>Big</h3>\n<h4>Mid</h4>\n<h5>Small</h5>"},
		{"lists", "* a\n* b\n# c", "<ul><li>a</li><li>b</li></ul>\n<ol><li>c</li></ol>"},
		{"quote", "> said\n> more", "<blockquote><p>said<br />more</p></blockquote>"},
		{"rule", "a\n----\nb", "<p>a</p>\n<hr />\n<p>b</p>"},
		{"pre", "///\n<b> x\n///", "<pre>&lt;b&gt; x</pre>"},
		{"inline", "__s__ ''e'' @@c@@ ++i++ --d-- {{q}}",
			"<p><strong>s</strong> <em>e</em> <code>c</code> <ins>i</ins> <del>d</del> <q>q</q></p>"},
		{"links", "[Go|http://go.dev|en] and [http://x.test]",
			`<p><a href="http://go.dev" hreflang="en">Go</a> and <a href="http://x.test">http://x.test</a></p>`},
		{"image", "((/img.png|A cat))", `<p><img src="/img.png" alt="A cat" /></p>`},
		{"escaping", "1 < 2 & 3", "<p>1 &lt; 2 &amp; 3</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := WikiToXHTML(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
