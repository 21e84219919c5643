package parsers

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/dates"
	"feed-aggregator/internal/xmlutil"
)

// Dublin Core tags are typically used to express RSS 0.92/2.0 style
// information with simpler RSS versions, so most of them map onto the
// canonical metadata keys. dc:date is special: it adjusts the item time.
var dcFeedMapping = map[string]string{
	"creator":     "creator",
	"subject":     "category",
	"description": "description",
	"publisher":   "publisher",
	"contributor": "contributor",
	"language":    "language",
	"rights":      "copyright",
}

var dcItemMapping = map[string]string{
	"creator":     "creator",
	"subject":     "category",
	"description": "description",
	"publisher":   "publisher",
	"contributor": "contributor",
	"language":    "language",
	"rights":      "copyright",
}

func newDCHandler() *NsHandler {
	return &NsHandler{
		Prefixes: []string{"dc"},
		URIs: []string{
			"http://purl.org/dc/elements/1.1/",
			"http://purl.org/dc/elements/1.0/",
		},
		ParseChannelTag: dcParseChannelTag,
		ParseItemTag:    dcParseItemTag,
	}
}

func dcParseChannelTag(ctx *Context, n *xmlquery.Node) {
	if n.Data == "title" {
		ctx.Feed.OverrideTitle(xmlutil.StripTags(xmlutil.NodeText(n)))
		return
	}

	mapping, ok := dcFeedMapping[n.Data]
	if !ok {
		return
	}
	if value := xmlutil.NodeText(n); strings.TrimSpace(value) != "" {
		ctx.Subscription.Metadata.Append(mapping, value)
	}
}

func dcParseItemTag(ctx *Context, n *xmlquery.Node) {
	switch n.Data {
	case "date":
		ctx.SetItemTime(dates.ParseISO8601(xmlutil.NodeText(n)))
		return
	case "title":
		if value := xmlutil.NodeText(n); value != "" {
			// namespaced override wins over the format-native title
			ctx.Item.Title = xmlutil.StripTags(value)
		}
		return
	}

	mapping, ok := dcItemMapping[n.Data]
	if !ok {
		return
	}
	if value := xmlutil.NodeText(n); strings.TrimSpace(value) != "" {
		ctx.Item.Metadata.Append(mapping, value)
	}
}
