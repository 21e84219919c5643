package parsers

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/dates"
	"feed-aggregator/internal/xmlutil"
)

// atom03Parser handles Atom 0.3 and the earlier Echo/PIE drafts. Its
// format check is deliberately lax (any root named feed) and therefore
// runs after the namespace-qualified Atom 1.0 check.
type atom03Parser struct {
	registry *Registry
}

func newAtom03Parser(registry *Registry) *atom03Parser {
	return &atom03Parser{registry: registry}
}

func (p *atom03Parser) Name() string { return "atom03" }

func (p *atom03Parser) CheckFormat(root *xmlquery.Node) bool {
	return root.Data == "feed"
}

func (p *atom03Parser) Parse(ctx *Context, root *xmlquery.Node) {
	for cur := root.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		if cur.Prefix != "" {
			if p.registry.HandleChannelTag(ctx, cur) {
				continue
			}
		}

		switch cur.Data {
		case "title":
			ctx.Feed.SetTitle(xmlutil.StripTags(p.parseContentConstruct(ctx, cur)))
		case "link":
			p.parseLink(ctx, cur, func(url string) { ctx.Feed.SetHTMLURL(url) })
		case "author":
			ctx.Feed.Metadata.Append("author", parsePersonConstruct(cur))
		case "contributor":
			ctx.Feed.Metadata.Append("contributor", parsePersonConstruct(cur))
		case "tagline":
			if tagline := p.parseContentConstruct(ctx, cur); tagline != "" {
				ctx.Feed.Description = tagline
			}
		case "generator":
			p.parseGenerator(ctx, cur)
		case "copyright":
			if c := p.parseContentConstruct(ctx, cur); c != "" {
				ctx.Feed.Metadata.Append("copyright", c)
			}
		case "modified", "updated":
			if value := xmlutil.NodeText(cur); value != "" {
				ctx.Feed.Metadata.Append("pubDate", value)
				if t := dates.ParseISO8601(value); t != 0 {
					ctx.Feed.Time = t
				}
			}
		case "entry":
			p.parseEntry(ctx, cur)
		}
	}
}

func (p *atom03Parser) parseEntry(ctx *Context, node *xmlquery.Node) {
	ctx.BeginItem()

	for cur := node.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		if cur.Prefix != "" {
			if p.registry.HandleItemTag(ctx, cur) {
				continue
			}
		}

		switch cur.Data {
		case "title":
			ctx.SetItemTitle(xmlutil.StripTags(p.parseContentConstruct(ctx, cur)))
		case "link":
			p.parseLink(ctx, cur, ctx.SetItemSource)
		case "author":
			ctx.Item.Metadata.Append("author", parsePersonConstruct(cur))
		case "contributor":
			ctx.Item.Metadata.Append("contributor", parsePersonConstruct(cur))
		case "id":
			if id := xmlutil.NodeText(cur); id != "" {
				ctx.Item.GUID = id
				ctx.Item.ValidGUID = true
			}
		case "content":
			ctx.SetItemDescription(p.parseContentConstruct(ctx, cur), descPrioContent)
		case "summary":
			ctx.SetItemDescription(p.parseContentConstruct(ctx, cur), descPrioSummary)
		case "issued", "created", "modified":
			ctx.SetItemTime(dates.ParseISO8601(xmlutil.NodeText(cur)))
		}
	}

	ctx.FinishItem()
}

// parseLink handles both link styles: 0.3 puts the target into a href
// attribute with a rel, 0.2 used the element content.
func (p *atom03Parser) parseLink(ctx *Context, cur *xmlquery.Node, set func(string)) {
	if href := xmlutil.Attr(cur, "href"); href != "" {
		rel := xmlutil.Attr(cur, "rel")
		if rel == "" || rel == "alternate" {
			set(href)
		}
		return
	}
	if url := xmlutil.NodeText(cur); url != "" {
		set(url)
	}
}

func (p *atom03Parser) parseGenerator(ctx *Context, cur *xmlquery.Node) {
	generator := xmlutil.StripTags(xmlutil.NodeText(cur))
	if generator == "" {
		return
	}

	if version := xmlutil.Attr(cur, "version"); version != "" {
		generator += " " + version
	}
	if genURL := xmlutil.Attr(cur, "url"); genURL != "" {
		generator = "<a href=\"" + genURL + "\">" + generator + "</a>"
	}

	ctx.Feed.Generator = generator
	ctx.Feed.Metadata.Append("feedgenerator", generator)
}

// parseContentConstruct handles the Atom 0.3 mode based content model.
func (p *atom03Parser) parseContentConstruct(ctx *Context, cur *xmlquery.Node) string {
	switch xmlutil.Attr(cur, "mode") {
	case "escaped":
		return xmlutil.NodeText(cur)
	case "xml":
		return xmlutil.ExtractXHTML(cur, false, "")
	case "base64":
		ctx.Error("Base64 encoded <content> in Atom feeds is not supported!")
		return ""
	case "multipart/alternative":
		if first := firstChildElement(cur); first != nil {
			return p.parseContentConstruct(ctx, first)
		}
		return ""
	}

	// some feeds specify no mode but a MIME type
	contentType := xmlutil.Attr(cur, "type")
	switch {
	case contentType == "" ||
		contentType == "text/html" ||
		contentType == "text/plain" ||
		strings.EqualFold(contentType, "application/xhtml+xml"):
		return xmlutil.ExtractXHTML(cur, false, "")
	default:
		return xmlutil.NodeText(cur)
	}
}

func firstChildElement(n *xmlquery.Node) *xmlquery.Node {
	for cur := n.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type == xmlquery.ElementNode {
			return cur
		}
	}
	return nil
}
