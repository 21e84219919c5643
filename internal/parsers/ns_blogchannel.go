package parsers

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/xmlutil"
)

const (
	blogRollHeader  = "<p><div class=\"blogchanneltitle\"><b>BlogRoll</b></div></p>"
	mySubscrHeader  = "<p><div class=\"blogchanneltitle\"><b>Authors Subscriptions</b></div></p>"
	promotedHeader  = "<p><div class=\"blogchanneltitle\"><b>Promoted Weblog</b></div></p>"
	maxBlogrollSize = 1 << 20
)

// blogChannel tags reference an OPML document by URL; the referenced
// outline list is fetched synchronously while the document is parsed and
// inlined as HTML metadata. The "changes" tag is ignored.
func newBlogChannelHandler(fetch FetchFunc) *NsHandler {
	h := &blogChannelHandler{fetch: fetch}
	return &NsHandler{
		Prefixes:        []string{"blogChannel"},
		URIs:            []string{"http://backend.userland.com/blogChannelModule"},
		ParseChannelTag: h.parseChannelTag,
	}
}

type blogChannelHandler struct {
	fetch FetchFunc
}

func (h *blogChannelHandler) parseChannelTag(ctx *Context, n *xmlquery.Node) {
	var header string
	switch n.Data {
	case "blogRoll":
		header = blogRollHeader
	case "mySubscriptions":
		header = mySubscrHeader
	case "blink":
		header = promotedHeader
	default:
		return
	}

	url := xmlutil.NodeText(n)
	if url == "" || h.fetch == nil {
		return
	}

	list := h.outlineList(ctx, url)
	if list == "" {
		return
	}

	buf := ctx.Subscription.Metadata.Get("blogChannel")
	ctx.Subscription.Metadata.Set("blogChannel", buf+header+list)
}

// outlineList downloads an OPML document and renders its depth-1 outlines
// as HTML.
func (h *blogChannelHandler) outlineList(ctx *Context, url string) string {
	data, err := h.fetch(url)
	if err != nil {
		ctx.Error("Could not download blogChannel OPML \"%s\": %v", url, err)
		return ""
	}
	if len(data) > maxBlogrollSize {
		data = data[:maxBlogrollSize]
	}

	doc, err := xmlutil.Parse(data)
	if err != nil {
		return ""
	}
	root := xmlutil.Root(doc)
	if root == nil || (root.Data != "opml" && root.Data != "oml" && root.Data != "outlineDocument") {
		return ""
	}

	var b strings.Builder
	body := root.SelectElement("body")
	if body == nil {
		return ""
	}
	for cur := body.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode || cur.Data != "outline" {
			continue
		}
		b.WriteString(h.outlineContents(cur))
		b.WriteString("<br>")
	}
	return b.String()
}

func (h *blogChannelHandler) outlineContents(n *xmlquery.Node) string {
	var b strings.Builder

	if text := xmlutil.Attr(n, "text"); text != "" {
		b.WriteString(text)
	}
	if url := xmlutil.Attr(n, "url"); url != "" {
		b.WriteString("&nbsp;<a href=\"" + url + "\">" + url + "</a>")
	}
	if htmlURL := xmlutil.Attr(n, "htmlUrl"); htmlURL != "" {
		b.WriteString("&nbsp;(<a href=\"" + htmlURL + "\">HTML</a>)")
	}
	if xmlURL := xmlutil.Attr(n, "xmlUrl"); xmlURL != "" {
		b.WriteString("&nbsp;(<a href=\"" + xmlURL + "\">XML</a>)")
	}

	return b.String()
}
