package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-aggregator/internal/models"
)

func TestCDFParse(t *testing.T) {
	ctx := parseTestFeed(t, `<?xml version="1.0"?>
	<CHANNEL HREF="http://example.com/">
	  <TITLE>CDF Channel</TITLE>
	  <ABSTRACT>About the channel</ABSTRACT>
	  <LOGO HREF="http://example.com/logo.gif" STYLE="image"/>
	  <ITEM HREF="http://example.com/one.html">
	    <TITLE>Item One</TITLE>
	    <ABSTRACT>First item</ABSTRACT>
	  </ITEM>
	  <item href="http://example.com/two.html">
	    <title>Item Two</title>
	  </item>
	</CHANNEL>`)

	assert.Equal(t, "CDF Channel", ctx.Feed.Title)
	assert.Equal(t, "About the channel", ctx.Feed.Description)
	assert.Equal(t, "http://example.com/logo.gif", ctx.Feed.ImageURL)

	require.Len(t, ctx.Items, 2)
	assert.Equal(t, "Item One", ctx.Items[0].Title)
	assert.Equal(t, "http://example.com/one.html", ctx.Items[0].Source)
	assert.Equal(t, "First item", ctx.Items[0].Description)
	assert.Equal(t, "http://example.com/two.html", ctx.Items[1].Source)
}

func TestOPMLParse(t *testing.T) {
	ctx := parseTestFeed(t, `<?xml version="1.0"?>
	<opml version="1.0">
	  <head><title>My Outline</title></head>
	  <body>
	    <outline text="First" url="http://example.com/1"/>
	    <outline text="Group">
	      <outline text="Nested" xmlUrl="http://example.com/feed.xml"/>
	    </outline>
	  </body>
	</opml>`)

	assert.Equal(t, "My Outline", ctx.Feed.Title)
	assert.Equal(t, models.IntervalNever, ctx.Subscription.UpdateInterval)

	require.Len(t, ctx.Items, 2)

	first := ctx.Items[0]
	assert.Equal(t, "First", first.Title)
	assert.Contains(t, first.Description, `<a href="http://example.com/1">`)
	assert.True(t, first.Read)

	group := ctx.Items[1]
	assert.Equal(t, "Group", group.Title)
	assert.Contains(t, group.Description, "<ul class=\"opmlchilds\">")
	assert.Contains(t, group.Description, "Nested")
	assert.Contains(t, group.Description, "http://example.com/feed.xml")
}

func TestOPMLMissingBody(t *testing.T) {
	ctx := testContext()
	d := testDispatcher()
	err := d.Parse(ctx, []byte(`<opml><head><title>x</title></head></opml>`))

	assert.NoError(t, err)
	assert.Empty(t, ctx.Items)
	assert.Contains(t, ctx.Subscription.ParseErrors(), "OPML body")
}
