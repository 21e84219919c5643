package parsers

import (
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/dates"
	"feed-aggregator/internal/xmlutil"
)

// cdfParser reads Microsoft CDF channels. CDF tags appear upper- and
// lower-case in the wild, so all name matching is case-insensitive.
type cdfParser struct{}

func newCDFParser() *cdfParser { return &cdfParser{} }

func (p *cdfParser) Name() string { return "cdf" }

func (p *cdfParser) CheckFormat(root *xmlquery.Node) bool {
	return strings.EqualFold(root.Data, "channel")
}

func (p *cdfParser) Parse(ctx *Context, root *xmlquery.Node) {
	ctx.Feed.Time = time.Now().Unix()

	// some CDF documents nest the real channel one level deeper
	channel := root
	if inner := childElementFold(root, "channel"); inner != nil {
		channel = inner
	}

	if href := attrFold(channel, "href"); href != "" {
		ctx.Feed.SetHTMLURL(href)
	}

	for cur := channel.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		switch strings.ToLower(cur.Data) {
		case "logo":
			if ctx.Feed.ImageURL == "" {
				ctx.Feed.ImageURL = attrFold(cur, "href")
			}
		case "title":
			ctx.Feed.SetTitle(xmlutil.StripTags(xmlutil.NodeText(cur)))
		case "abstract":
			if desc := xmlutil.NodeText(cur); desc != "" {
				ctx.Feed.Description = desc
			}
		case "lastmod":
			if t := dates.ParseRFC822(xmlutil.NodeText(cur)); t != 0 {
				ctx.Feed.Time = t
			}
		case "item":
			p.parseItem(ctx, cur)
		}
	}
}

func (p *cdfParser) parseItem(ctx *Context, node *xmlquery.Node) {
	ctx.BeginItem()

	// the item link is carried by the HREF attribute
	if href := attrFold(node, "href"); href != "" {
		ctx.SetItemSource(href)
	}

	for cur := node.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type != xmlquery.ElementNode {
			continue
		}

		switch strings.ToLower(cur.Data) {
		case "a":
			if ctx.Item.Source == "" {
				ctx.SetItemSource(attrFold(cur, "href"))
			}
		case "title":
			ctx.SetItemTitle(xmlutil.StripTags(xmlutil.NodeText(cur)))
		case "abstract":
			ctx.SetItemDescription(xmlutil.NodeText(cur), descPrioSummary)
		case "lastmod":
			ctx.SetItemTime(dates.ParseRFC822(xmlutil.NodeText(cur)))
		case "author":
			if author := xmlutil.NodeText(cur); author != "" {
				ctx.Item.Metadata.Append("author", author)
			}
		case "category":
			if category := xmlutil.NodeText(cur); category != "" {
				ctx.Item.Metadata.Append("category", category)
			}
		}
	}

	ctx.FinishItem()
}

func childElementFold(n *xmlquery.Node, name string) *xmlquery.Node {
	for cur := n.FirstChild; cur != nil; cur = cur.NextSibling {
		if cur.Type == xmlquery.ElementNode && strings.EqualFold(cur.Data, name) {
			return cur
		}
	}
	return nil
}

func attrFold(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value
		}
	}
	return ""
}
