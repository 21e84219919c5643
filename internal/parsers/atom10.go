package parsers

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/dates"
	"feed-aggregator/internal/uri"
	"feed-aggregator/internal/xmlutil"
)

const atom10Namespace = "http://www.w3.org/2005/Atom"

type atom10Parser struct {
	registry *Registry
}

func newAtom10Parser(registry *Registry) *atom10Parser {
	return &atom10Parser{registry: registry}
}

func (p *atom10Parser) Name() string { return "atom10" }

func (p *atom10Parser) CheckFormat(root *xmlquery.Node) bool {
	return root.Data == "feed" && root.NamespaceURI == atom10Namespace
}

func (p *atom10Parser) Parse(ctx *Context, root *xmlquery.Node) {
	for cur := root.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		if cur.NamespaceURI != atom10Namespace {
			if !p.registry.HandleChannelTag(ctx, cur) {
				ctx.Error("Unknown namespace in feed element <%s>", cur.Data)
			}
			continue
		}

		switch cur.Data {
		case "title":
			ctx.Feed.SetTitle(xmlutil.StripTags(parseTextConstruct(cur, false)))
		case "subtitle":
			if subtitle := parseTextConstruct(cur, true); subtitle != "" {
				ctx.Feed.Description = subtitle
			}
		case "link":
			p.parseFeedLink(ctx, cur)
		case "updated":
			if value := xmlutil.NodeText(cur); value != "" {
				ctx.Feed.Metadata.Append("contentUpdateDate", value)
				if t := dates.ParseISO8601(value); t != 0 {
					ctx.Feed.Time = t
				}
			}
		case "author":
			ctx.Feed.Metadata.Append("author", parsePersonConstruct(cur))
		case "contributor":
			ctx.Feed.Metadata.Append("contributor", parsePersonConstruct(cur))
		case "category":
			if category := categoryLabel(cur); category != "" {
				ctx.Feed.Metadata.Append("category", xmlutil.EscapeHTML(category))
			}
		case "generator":
			p.parseGenerator(ctx, cur)
		case "logo":
			if logo := parseTextConstruct(cur, false); logo != "" {
				ctx.Feed.ImageURL = logo
			}
		case "rights":
			if rights := parseTextConstruct(cur, false); rights != "" {
				ctx.Feed.Metadata.Append("copyright", rights)
			}
		case "entry":
			p.parseEntry(ctx, cur)
		case "icon", "id":
			// nothing useful to keep
		}
	}
}

func (p *atom10Parser) parseEntry(ctx *Context, node *xmlquery.Node) {
	ctx.BeginItem()

	for cur := node.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		if cur.NamespaceURI != atom10Namespace {
			if !p.registry.HandleItemTag(ctx, cur) {
				ctx.Error("Unknown namespace in entry element <%s>", cur.Data)
			}
			continue
		}

		switch cur.Data {
		case "author":
			ctx.Item.Metadata.Append("author", parsePersonConstruct(cur))
		case "contributor":
			ctx.Item.Metadata.Append("contributor", parsePersonConstruct(cur))
		case "category":
			if category := categoryLabel(cur); category != "" {
				ctx.Item.Metadata.Append("category", xmlutil.EscapeHTML(category))
			}
		case "content":
			ctx.SetItemDescription(p.parseContentConstruct(ctx, cur), descPrioContent)
		case "id":
			if id := xmlutil.NodeText(cur); id != "" {
				ctx.Item.GUID = id
				ctx.Item.ValidGUID = true
			}
		case "link":
			p.parseEntryLink(ctx, cur)
		case "published":
			if value := xmlutil.NodeText(cur); value != "" {
				ctx.SetItemTime(dates.ParseISO8601(value))
				ctx.Item.Metadata.Append("pubDate", value)
			}
		case "updated":
			if value := xmlutil.NodeText(cur); value != "" {
				ctx.SetItemTime(dates.ParseISO8601(value))
				ctx.Item.Metadata.Append("contentUpdateDate", value)
			}
		case "rights":
			if rights := parseTextConstruct(cur, false); rights != "" {
				ctx.Item.Metadata.Append("copyright", rights)
			}
		case "summary":
			ctx.SetItemDescription(parseTextConstruct(cur, true), descPrioSummary)
		case "title":
			ctx.SetItemTitle(xmlutil.StripTags(parseTextConstruct(cur, false)))
		}
	}

	ctx.FinishItem()
}

// parseFeedLink handles the rel attribute: alternate (or none) links the
// homepage, anything else is ignored without erroring.
func (p *atom10Parser) parseFeedLink(ctx *Context, cur *xmlquery.Node) {
	href := xmlutil.Attr(cur, "href")
	if href == "" {
		return
	}
	url := uri.BuildURL(href, ctx.Feed.HTMLURL)

	rel := xmlutil.Attr(cur, "rel")
	if rel == "" || rel == "alternate" {
		ctx.Feed.SetHTMLURL(url)
	}
}

// parseEntryLink handles entry links: alternate sets the item source,
// enclosure appends enclosure metadata, other relations are ignored.
func (p *atom10Parser) parseEntryLink(ctx *Context, cur *xmlquery.Node) {
	href := xmlutil.Attr(cur, "href")
	if href == "" {
		return
	}
	url := uri.BuildURL(href, ctx.Feed.HTMLURL)

	switch xmlutil.Attr(cur, "rel") {
	case "", "alternate":
		ctx.SetItemSource(url)
	case "enclosure":
		ctx.AddEnclosure(url)
	}
}

func (p *atom10Parser) parseGenerator(ctx *Context, cur *xmlquery.Node) {
	generator := xmlutil.StripTags(xmlutil.NodeText(cur))
	if generator == "" {
		return
	}

	if version := xmlutil.Attr(cur, "version"); version != "" {
		generator += " " + version
	}
	if genURI := xmlutil.Attr(cur, "uri"); genURI != "" {
		generator = "<a href=\"" + genURI + "\">" + generator + "</a>"
	}

	ctx.Feed.Generator = generator
	ctx.Feed.Metadata.Append("feedgenerator", generator)
}

// parseContentConstruct handles Atom 1.0 content. Out-of-line content
// referenced through a src attribute is rendered as a link.
func (p *atom10Parser) parseContentConstruct(ctx *Context, cur *xmlquery.Node) string {
	if xmlutil.HasAttr(cur, "src") {
		src := xmlutil.Attr(cur, "src")
		if src == "" {
			return ""
		}
		url := uri.BuildURL(src, ctx.Feed.HTMLURL)
		return "<p><a href=\"" + url + "\">View this item's contents.</a></p>"
	}

	contentType := xmlutil.Attr(cur, "type")
	switch {
	case contentType == "html" || strings.EqualFold(contentType, "text/html"):
		return xmlutil.NodeText(cur)
	case contentType == "" || contentType == "text" ||
		strings.HasPrefix(strings.ToLower(contentType), "text/"):
		// text/* types can be displayed directly
		return "<pre>" + xmlutil.EscapeHTML(xmlutil.NodeText(cur)) + "</pre>"
	case contentType == "xhtml" || strings.EqualFold(contentType, "application/xhtml+xml"):
		// only the contents of the mandatory div are used
		div := childElement(cur, "div")
		if div == nil {
			return "This item's contents is invalid."
		}
		return xmlutil.ExtractXHTML(div, true, ctx.Feed.HTMLURL)
	default:
		return "This item's content type is not supported."
	}
}

// parseTextConstruct handles Atom 1.0 text constructs. With htmlified the
// result is HTML, otherwise plain text.
func parseTextConstruct(cur *xmlquery.Node, htmlified bool) string {
	switch xmlutil.Attr(cur, "type") {
	case "", "text":
		text := xmlutil.NodeText(cur)
		if htmlified {
			return "<pre>" + xmlutil.EscapeHTML(text) + "</pre>"
		}
		return text
	case "html":
		text := xmlutil.NodeText(cur)
		if !htmlified {
			return xmlutil.StripTags(text)
		}
		return text
	case "xhtml":
		div := childElement(cur, "div")
		if div == nil {
			return ""
		}
		if !htmlified {
			return xmlutil.StripTags(xmlutil.ExtractXHTML(div, false, ""))
		}
		return xmlutil.ExtractXHTML(div, true, "")
	default:
		return ""
	}
}

// categoryLabel prefers the human readable label over the term.
func categoryLabel(cur *xmlquery.Node) string {
	if label := xmlutil.Attr(cur, "label"); label != "" {
		return label
	}
	return xmlutil.Attr(cur, "term")
}

// parsePersonConstruct renders an Atom person as
// "Name[ - <mailto link>][ (Website link)]".
func parsePersonConstruct(cur *xmlquery.Node) string {
	var name, email, website string

	for child := cur.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		switch child.Data {
		case "name":
			name = xmlutil.NodeText(child)
		case "email":
			if addr := xmlutil.NodeText(child); addr != "" {
				email = " - <a href=\"mailto:" + addr + "\">" + addr + "</a>"
			}
		case "uri", "url":
			if href := xmlutil.NodeText(child); href != "" {
				website = " (<a href=\"" + href + "\">Website</a>)"
			}
		}
	}

	if name == "" {
		name = "unknown author"
	}
	return name + email + website
}
