package parsers

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/models"
	"feed-aggregator/internal/xmlutil"
)

// opmlParser renders OPML outline documents as a readable feed: every
// outline of the body becomes one item.
type opmlParser struct{}

func newOPMLParser() *opmlParser { return &opmlParser{} }

func (p *opmlParser) Name() string { return "opml" }

func (p *opmlParser) CheckFormat(root *xmlquery.Node) bool {
	switch root.Data {
	case "opml", "oml", "outlineDocument":
		return true
	}
	return false
}

func (p *opmlParser) Parse(ctx *Context, root *xmlquery.Node) {
	// outline documents don't change, so there is no point in polling them
	ctx.Subscription.UpdateInterval = models.IntervalNever

	if head := childElement(root, "head"); head != nil {
		if title := xmlutil.NodeText(childElement(head, "title")); title != "" {
			ctx.Feed.SetTitle(title)
		}
		if owner := xmlutil.NodeText(childElement(head, "ownerName")); owner != "" {
			ctx.Feed.Metadata.Append("author", owner)
		}
	}
	if ctx.Feed.Title == "" {
		ctx.Feed.SetTitle(ctx.Subscription.Source)
	}

	body := childElement(root, "body")
	if body == nil {
		ctx.Error("Could not find OPML body!")
		return
	}

	for cur := body.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode || cur.Data != "outline" {
			continue
		}

		ctx.BeginItem()

		title := xmlutil.Attr(cur, "text")
		if title == "" {
			title = xmlutil.Attr(cur, "title")
		}
		ctx.SetItemTitle(title)
		ctx.SetItemDescription(outlineContents(cur), descPrioSummary)
		// outlines are informational, they start out read
		ctx.Item.Read = true

		ctx.FinishItem()
	}
}

// outlineContents renders the attributes of an outline as an HTML
// fragment; nested outlines become nested lists.
func outlineContents(n *xmlquery.Node) string {
	var b strings.Builder

	for _, attr := range n.Attr {
		value := attr.Value
		if value == "" {
			continue
		}
		switch attr.Name.Local {
		case "text":
			b.WriteString("<p class=\"opmltext\">" + value + "</p>")
		case "isComment", "type":
			// not rendered
		case "url":
			b.WriteString("<p class=\"opmlurl\">URL : <a href=\"" + value + "\">" + value + "</a></p>")
		case "htmlUrl", "htmlurl":
			b.WriteString("<p class=\"opmlhtmlurl\">HTML : <a href=\"" + value + "\">" + value + "</a></p>")
		case "xmlUrl", "xmlurl":
			b.WriteString("<p class=\"opmlxmlurl\">XML : <a href=\"" + value + "\">" + value + "</a></p>")
		default:
			b.WriteString("<p class=\"opmlanyattribute\">" + attr.Name.Local + " : " + value + "</p>")
		}
	}

	var nested strings.Builder
	for cur := n.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type == xmlquery.ElementNode && cur.Data == "outline" {
			nested.WriteString("<li class=\"opmllistitem\">" + outlineContents(cur) + "</li>")
		}
	}
	if nested.Len() > 0 {
		b.WriteString("<ul class=\"opmlchilds\">" + nested.String() + "</ul>")
	}

	return b.String()
}
