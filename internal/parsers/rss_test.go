package parsers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-aggregator/internal/models"
)

func testContext() *Context {
	sub := &models.Subscription{
		NodeID: "node-1",
		Source: "http://example.com/feed.xml",
	}
	return NewContext(sub, zerolog.Nop())
}

func testDispatcher() *Dispatcher {
	return NewDispatcher(zerolog.Nop(), nil)
}

func parseTestFeed(t *testing.T, data string) *Context {
	t.Helper()
	ctx := testContext()
	d := NewDispatcher(zerolog.Nop(), nil)
	require.NoError(t, d.Parse(ctx, []byte(data)))
	return ctx
}

const rss20Feed = `<?xml version="1.0"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/"
     xmlns:dc="http://purl.org/dc/elements/1.1/"
     xmlns:slash="http://purl.org/rss/1.0/modules/slash/">
  <channel>
    <title>Example &amp; News</title>
    <link>http://example.com/</link>
    <description>Example feed</description>
    <language>en</language>
    <copyright>© Example</copyright>
    <category>tech</category>
    <category>news</category>
    <lastBuildDate>Fri, 03 Dec 2012 01:38:34 GMT</lastBuildDate>
    <ttl>90</ttl>
    <item>
      <title>First &lt;b&gt;post&lt;/b&gt;</title>
      <link>http://example.com/1</link>
      <guid isPermaLink="false">id-1</guid>
      <pubDate>Fri, 03 Dec 2012 01:38:34 GMT</pubDate>
      <description>plain description</description>
      <content:encoded>&lt;p&gt;rich content&lt;/p&gt;</content:encoded>
      <dc:creator>alice</dc:creator>
      <slash:section>articles</slash:section>
      <slash:department>kernel</slash:department>
      <enclosure url="http://example.com/a.mp3" type="audio/mpeg" length="1"/>
    </item>
    <item>
      <title>Second post</title>
      <guid>http://example.com/2</guid>
      <description>second</description>
    </item>
  </channel>
</rss>`

func TestRSS20Parse(t *testing.T) {
	ctx := parseTestFeed(t, rss20Feed)

	assert.Equal(t, "Example & News", ctx.Feed.Title)
	assert.Equal(t, "http://example.com/", ctx.Feed.HTMLURL)
	assert.Equal(t, 90, ctx.Subscription.DefaultInterval)
	assert.Equal(t, []string{"tech", "news"}, ctx.Subscription.Metadata.All("category"))
	assert.Equal(t, "Fri, 03 Dec 2012 01:38:34 GMT",
		ctx.Subscription.Metadata.Get("contentUpdateDate"))

	require.Len(t, ctx.Items, 2)

	first := ctx.Items[0]
	assert.Equal(t, "First post", first.Title)
	assert.Equal(t, "http://example.com/1", first.Source)
	assert.Equal(t, "id-1", first.GUID)
	assert.True(t, first.ValidGUID)
	assert.Equal(t, int64(1354498714), first.Time)
	// content:encoded wins over description
	assert.Equal(t, "<p>rich content</p>", first.Description)
	assert.Equal(t, "alice", first.Metadata.Get("creator"))
	assert.Equal(t, "articles,kernel", first.Metadata.Get("slash"))
	assert.True(t, first.HasEnclosure)
	assert.Equal(t, "http://example.com/a.mp3", first.Metadata.Get("enclosure"))
	assert.False(t, first.Read)
	assert.True(t, first.New)

	second := ctx.Items[1]
	assert.True(t, second.ValidGUID)
	// permalink guid doubles as the item link
	assert.Equal(t, "http://example.com/2", second.Source)
	// missing item date inherits the feed time
	assert.Greater(t, second.Time, int64(0))
}

func TestRSSDescriptionDoesNotOverrideEncoded(t *testing.T) {
	// content:encoded before description: the lower precedence tag loses
	// regardless of document order
	ctx := parseTestFeed(t, `<rss version="2.0"
	    xmlns:content="http://purl.org/rss/1.0/modules/content/">
	  <channel><title>t</title>
	    <item>
	      <content:encoded>encoded</content:encoded>
	      <description>plain</description>
	      <guid>g1</guid>
	    </item>
	  </channel>
	</rss>`)

	require.Len(t, ctx.Items, 1)
	assert.Equal(t, "encoded", ctx.Items[0].Description)
}

func TestRSS10RDFItems(t *testing.T) {
	ctx := parseTestFeed(t, `<?xml version="1.0"?>
	<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	         xmlns="http://purl.org/rss/1.0/">
	  <channel rdf:about="http://example.com/">
	    <title>RDF Feed</title>
	    <link>http://example.com/</link>
	  </channel>
	  <item rdf:about="http://example.com/a">
	    <title>A</title>
	    <link>http://example.com/a</link>
	  </item>
	  <item rdf:about="http://example.com/b">
	    <title>B</title>
	  </item>
	</rdf:RDF>`)

	assert.Equal(t, "RDF Feed", ctx.Feed.Title)
	require.Len(t, ctx.Items, 2)
	assert.Equal(t, "http://example.com/a", ctx.Items[0].GUID)
	assert.Equal(t, "http://example.com/b", ctx.Items[1].Source)
}

func TestRSSUnknownChildDoesNotAbort(t *testing.T) {
	ctx := parseTestFeed(t, `<rss version="2.0">
	  <channel>
	    <title>t</title>
	    <bogusTag>whatever</bogusTag>
	    <item><title>ok</title><guid>g</guid></item>
	  </channel>
	</rss>`)

	require.Len(t, ctx.Items, 1)
	assert.Equal(t, "ok", ctx.Items[0].Title)
}

func TestRSSTextInput(t *testing.T) {
	ctx := parseTestFeed(t, `<rss version="2.0">
	  <channel>
	    <title>t</title>
	    <textInput>
	      <title>Search</title>
	      <description>Search this site</description>
	      <name>q</name>
	      <link>http://example.com/search</link>
	    </textInput>
	  </channel>
	</rss>`)

	form := ctx.Subscription.Metadata.Get("textInput")
	assert.Contains(t, form, "http://example.com/search")
	assert.Contains(t, form, "name=\"q\"")
	assert.Contains(t, form, "Search this site")
}

func TestRelativeEnclosureResolvedAgainstHomepage(t *testing.T) {
	ctx := parseTestFeed(t, `<rss version="2.0">
	  <channel>
	    <title>t</title>
	    <link>http://example.com/blog/</link>
	    <item>
	      <title>x</title><guid>g</guid>
	      <enclosure url="media/a.mp3" type="audio/mpeg" length="1"/>
	    </item>
	  </channel>
	</rss>`)

	require.Len(t, ctx.Items, 1)
	assert.Equal(t, "http://example.com/blog/media/a.mp3",
		ctx.Items[0].Metadata.Get("enclosure"))
}

func TestSyntheticItemIdentityIsStable(t *testing.T) {
	feed := `<rss version="2.0"><channel><title>t</title>
	  <item><title>no identity here</title><description>d</description></item>
	</channel></rss>`

	first := parseTestFeed(t, feed)
	second := parseTestFeed(t, feed)

	require.Len(t, first.Items, 1)
	require.Len(t, second.Items, 1)
	assert.NotEmpty(t, first.Items[0].GUID)
	assert.Equal(t, first.Items[0].GUID, second.Items[0].GUID)
	assert.False(t, first.Items[0].ValidGUID)
}

func TestDispatcherRejectsUnknownFormat(t *testing.T) {
	ctx := testContext()
	d := NewDispatcher(zerolog.Nop(), nil)

	err := d.Parse(ctx, []byte(`<notafeed><x/></notafeed>`))
	assert.Error(t, err)
	assert.Contains(t, ctx.Subscription.ParseErrors(), "feed format")
}
