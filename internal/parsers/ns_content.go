package parsers

import (
	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/xmlutil"
)

// The content module is only used for <content:encoded>. When present the
// encoded content replaces any plain description.
func newContentHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"content"},
		URIs:         []string{"http://purl.org/rss/1.0/modules/content/"},
		ParseItemTag: contentParseItemTag,
	}
}

func contentParseItemTag(ctx *Context, n *xmlquery.Node) {
	if n.Data != "encoded" {
		return
	}
	ctx.SetItemDescription(xmlutil.ExtractXHTML(n, false, ""), descPrioEncoded)
}
