package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const atom10Feed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <link href="http://example.com/"/>
  <link rel="self" href="http://example.com/feed.atom"/>
  <updated>2014-11-05T19:00:00+0100</updated>
  <author><name>Alice</name><email>alice@example.com</email></author>
  <generator uri="http://gen.example.com" version="1.2">FeedGen</generator>
  <entry>
    <title type="html">&lt;b&gt;Entry&lt;/b&gt; one</title>
    <id>urn:uuid:entry-1</id>
    <link rel="alternate" href="/posts/1"/>
    <link rel="enclosure" href="http://example.com/cast.mp3"/>
    <published>2014-11-05T19:00:00+0100</published>
    <content type="xhtml"><div xmlns="http://www.w3.org/1999/xhtml"><p>x</p></div></content>
    <summary>summary text</summary>
  </entry>
</feed>`

func TestAtom10Parse(t *testing.T) {
	ctx := parseTestFeed(t, atom10Feed)

	assert.Equal(t, "Atom Example", ctx.Feed.Title)
	assert.Equal(t, "http://example.com/", ctx.Feed.HTMLURL)
	assert.Equal(t, int64(1415210400), ctx.Feed.Time)
	assert.Contains(t, ctx.Feed.Metadata.Get("author"), "Alice")
	assert.Contains(t, ctx.Feed.Metadata.Get("author"), "mailto:alice@example.com")
	assert.Contains(t, ctx.Feed.Generator, "FeedGen 1.2")

	require.Len(t, ctx.Items, 1)
	entry := ctx.Items[0]

	assert.Equal(t, "Entry one", entry.Title)
	assert.Equal(t, "urn:uuid:entry-1", entry.GUID)
	assert.True(t, entry.ValidGUID)
	assert.Equal(t, "http://example.com/posts/1", entry.Source)
	assert.Equal(t, int64(1415210400), entry.Time)
	assert.True(t, entry.HasEnclosure)
	assert.Equal(t, "http://example.com/cast.mp3", entry.Metadata.Get("enclosure"))
}

func TestAtom10XHTMLContent(t *testing.T) {
	ctx := parseTestFeed(t, atom10Feed)

	require.Len(t, ctx.Items, 1)
	assert.Equal(t,
		`<div xmlns="http://www.w3.org/1999/xhtml"><p>x</p></div>`,
		ctx.Items[0].Description)
}

func TestAtom10SummaryDoesNotReplaceContent(t *testing.T) {
	// the summary in atom10Feed comes after the content element and must
	// not override it
	ctx := parseTestFeed(t, atom10Feed)
	require.Len(t, ctx.Items, 1)
	assert.NotContains(t, ctx.Items[0].Description, "summary text")
}

func TestAtom10ExternalContent(t *testing.T) {
	ctx := parseTestFeed(t, `<feed xmlns="http://www.w3.org/2005/Atom">
	  <title>t</title>
	  <entry>
	    <id>e1</id>
	    <title>x</title>
	    <content src="http://example.com/full.html" type="text/html"/>
	  </entry>
	</feed>`)

	require.Len(t, ctx.Items, 1)
	assert.Contains(t, ctx.Items[0].Description, `<a href="http://example.com/full.html">`)
	assert.Contains(t, ctx.Items[0].Description, "View this item's contents.")
}

func TestAtom10UnknownLinkRelationIgnored(t *testing.T) {
	ctx := parseTestFeed(t, `<feed xmlns="http://www.w3.org/2005/Atom">
	  <title>t</title>
	  <entry>
	    <id>e1</id>
	    <title>x</title>
	    <link rel="via" href="http://example.com/via"/>
	    <link rel="alternate" href="http://example.com/item"/>
	  </entry>
	</feed>`)

	require.Len(t, ctx.Items, 1)
	assert.Equal(t, "http://example.com/item", ctx.Items[0].Source)
}

func TestAtom03Parse(t *testing.T) {
	ctx := parseTestFeed(t, `<?xml version="1.0"?>
	<feed version="0.3" xmlns="http://purl.org/atom/ns#">
	  <title>Old Atom</title>
	  <link rel="alternate" type="text/html" href="http://example.com/"/>
	  <tagline>the tagline</tagline>
	  <modified>2014-11-05T18:00:00Z</modified>
	  <entry>
	    <title>Entry</title>
	    <link rel="alternate" href="http://example.com/1"/>
	    <id>tag:example.com,2014:1</id>
	    <issued>2014-11-05T18:00:00Z</issued>
	    <content type="text/html" mode="escaped">&lt;p&gt;body&lt;/p&gt;</content>
	  </entry>
	</feed>`)

	assert.Equal(t, "Old Atom", ctx.Feed.Title)
	assert.Equal(t, "http://example.com/", ctx.Feed.HTMLURL)
	assert.Equal(t, "the tagline", ctx.Feed.Description)
	assert.Equal(t, int64(1415210400), ctx.Feed.Time)

	require.Len(t, ctx.Items, 1)
	entry := ctx.Items[0]
	assert.Equal(t, "Entry", entry.Title)
	assert.Equal(t, "tag:example.com,2014:1", entry.GUID)
	assert.True(t, entry.ValidGUID)
	assert.Equal(t, "<p>body</p>", entry.Description)
	assert.Equal(t, int64(1415210400), entry.Time)
}
