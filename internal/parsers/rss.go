package parsers

import (
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/dates"
	"feed-aggregator/internal/xmlutil"
)

const rss11Namespace = "http://purl.org/net/rss1.1#"

const (
	textInputFormStart = "<form class=\"rssform\" method=\"GET\" action=\""
	textInputTextField = "\"><input class=\"rssformtext\" type=\"text\" value=\"\" name=\""
	textInputSubmit    = "\" /><input class=\"rssformsubmit\" type=\"submit\" value=\""
	textInputFormEnd   = "\" /></form>"
)

// rssToMetadata maps flat RSS channel/item tags directly onto metadata
// keys. The tag definitions are shared between channel and item parsing.
var rssToMetadata = map[string]string{
	"copyright":      "copyright",
	"category":       "category",
	"webMaster":      "webmaster",
	"language":       "language",
	"managingEditor": "managingEditor",
	"lastBuildDate":  "contentUpdateDate",
	"generator":      "feedgenerator",
	"publisher":      "webmaster",
	"author":         "author",
	"comments":       "commentsUri",
}

type rssParser struct {
	registry *Registry
}

func newRSSParser(registry *Registry) *rssParser {
	return &rssParser{registry: registry}
}

func (p *rssParser) Name() string { return "rss" }

// CheckFormat accepts flat RSS, RDF based RSS 0.9/1.0 and RSS 1.1.
func (p *rssParser) CheckFormat(root *xmlquery.Node) bool {
	switch root.Data {
	case "rss", "rdf", "RDF":
		return true
	case "Channel":
		return root.NamespaceURI == rss11Namespace
	}
	return false
}

func (p *rssParser) Parse(ctx *Context, root *xmlquery.Node) {
	ctx.Feed.Time = time.Now().Unix()

	var channel, itemScope *xmlquery.Node
	switch root.Data {
	case "rss":
		channel = childElement(root, "channel", "Channel")
		itemScope = channel
	case "rdf", "RDF":
		channel = childElement(root, "channel", "Channel")
		// RSS 1.0 keeps the items as siblings of the channel tag
		itemScope = root
	case "Channel":
		channel = root
		itemScope = root
	}

	if channel == nil {
		ctx.Error("Could not find RDF/RSS header!")
		return
	}

	p.parseChannel(ctx, channel)

	for cur := itemScope.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		switch cur.Data {
		case "image":
			if url := xmlutil.NodeText(childElement(cur, "url")); url != "" {
				ctx.Feed.ImageURL = url
			}
		case "textinput", "textInput":
			if form := parseTextInput(cur); form != "" {
				ctx.Subscription.Metadata.Append("textInput", form)
			}
		case "items":
			// RSS 1.1 keeps the items below an items tag
			for item := cur.FirstChild; item != nil; item = item.NextSibling {
				if item.Type == xmlquery.ElementNode && item.Data == "item" {
					p.parseItem(ctx, item)
				}
			}
		case "item":
			p.parseItem(ctx, cur)
		}
	}
}

func (p *rssParser) parseChannel(ctx *Context, channel *xmlquery.Node) {
	for cur := channel.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		// namespaced tags go to their handler first
		if cur.NamespaceURI != "" || cur.Prefix != "" {
			if p.registry.HandleChannelTag(ctx, cur) {
				continue
			}
		}

		if mapping, ok := rssToMetadata[cur.Data]; ok {
			if value := xmlutil.NodeText(cur); value != "" {
				ctx.Subscription.Metadata.Append(mapping, value)
			}
			continue
		}

		switch cur.Data {
		case "pubDate":
			if value := xmlutil.NodeText(cur); value != "" {
				ctx.Subscription.Metadata.Append("pubDate", value)
				if t := dates.ParseRFC822(value); t != 0 {
					ctx.Feed.Time = t
				}
			}
		case "ttl":
			if minutes, err := strconv.Atoi(xmlutil.NodeText(cur)); err == nil {
				ctx.Subscription.SetDefaultInterval(minutes)
			}
		case "title":
			ctx.Feed.SetTitle(xmlutil.StripTags(xmlutil.NodeText(cur)))
		case "link":
			ctx.Feed.SetHTMLURL(xmlutil.StripTags(xmlutil.NodeText(cur)))
		case "description":
			if desc := xmlutil.ExtractXHTML(cur, false, ""); desc != "" {
				ctx.Feed.Description = desc
				ctx.Subscription.Metadata.Set("description", desc)
			}
		}
	}
}

func (p *rssParser) parseItem(ctx *Context, node *xmlquery.Node) {
	ctx.BeginItem()

	// RDF items carry their identity in the rdf:about attribute
	if about := xmlutil.Attr(node, "about"); about != "" {
		ctx.Item.GUID = about
		ctx.SetItemSource(about)
	}

	for cur := node.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		if cur.NamespaceURI != "" || cur.Prefix != "" {
			if p.registry.HandleItemTag(ctx, cur) {
				continue
			}
		}

		if mapping, ok := rssToMetadata[cur.Data]; ok {
			if value := xmlutil.NodeText(cur); value != "" {
				ctx.Item.Metadata.Append(mapping, value)
			}
			continue
		}

		switch cur.Data {
		case "pubDate":
			ctx.SetItemTime(dates.ParseRFC822(xmlutil.NodeText(cur)))
		case "enclosure":
			// RSS 0.93 allows multiple enclosures
			if url := xmlutil.Attr(cur, "url"); url != "" {
				ctx.AddEnclosure(url)
			}
		case "guid":
			p.parseGUID(ctx, cur)
		case "title":
			ctx.SetItemTitle(xmlutil.StripTags(xmlutil.NodeText(cur)))
		case "link":
			ctx.SetItemSource(xmlutil.StripTags(xmlutil.NodeText(cur)))
		case "description":
			ctx.SetItemDescription(xmlutil.ExtractXHTML(cur, false, ""), descPrioSummary)
		case "source":
			if url := xmlutil.Attr(cur, "url"); url != "" {
				ctx.Item.RealSourceURL = url
			}
			if title := xmlutil.StripTags(xmlutil.NodeText(cur)); title != "" {
				ctx.Item.RealSourceTitle = title
			}
		}
	}

	ctx.FinishItem()
}

func (p *rssParser) parseGUID(ctx *Context, cur *xmlquery.Node) {
	if ctx.Item.GUID != "" {
		return
	}

	guid := strings.TrimSpace(cur.InnerText())
	if guid == "" {
		return
	}

	ctx.Item.GUID = guid
	ctx.Item.ValidGUID = true

	// Per the RSS 2.0 spec a permalink guid doubles as the item link.
	isPermaLink := xmlutil.Attr(cur, "isPermaLink")
	if ctx.Item.Source == "" && (isPermaLink == "" || isPermaLink == "true") {
		ctx.SetItemSource(guid)
	}
}

// parseTextInput renders a channel text input as an HTML form string.
func parseTextInput(node *xmlquery.Node) string {
	var title, description, name, link string

	for cur := node.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}
		switch cur.Data {
		case "title":
			title = xmlutil.StripTags(xmlutil.NodeText(cur))
		case "description":
			description = xmlutil.StripTags(xmlutil.NodeText(cur))
		case "name":
			name = xmlutil.NodeText(cur)
		case "link":
			link = xmlutil.NodeText(cur)
		}
	}

	if title == "" || description == "" || name == "" || link == "" {
		return ""
	}

	return "<p>" + description +
		textInputFormStart + link +
		textInputTextField + name +
		textInputSubmit + title +
		textInputFormEnd + "</p>"
}

// childElement returns the first direct child element with one of the
// given names.
func childElement(n *xmlquery.Node, names ...string) *xmlquery.Node {
	for cur := n.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}
		for _, name := range names {
			if cur.Data == name {
				return cur
			}
		}
	}
	return nil
}
