package parsers

import (
	"fmt"
	"strconv"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/dates"
	"feed-aggregator/internal/xmlutil"
)

// slash: section and department are combined into one "slash" entry of the
// form "section,department", whichever tag arrives last completes it.
func newSlashHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"slash"},
		URIs:         []string{"http://purl.org/rss/1.0/modules/slash/"},
		ParseItemTag: slashParseItemTag,
	}
}

func slashParseItemTag(ctx *Context, n *xmlquery.Node) {
	switch n.Data {
	case "section":
		ctx.Tmp["slash:section"] = xmlutil.NodeText(n)
	case "department":
		ctx.Tmp["slash:department"] = xmlutil.NodeText(n)
	default:
		return
	}

	ctx.Item.Metadata.Set("slash",
		fmt.Sprintf("%s,%s", ctx.Tmp["slash:section"], ctx.Tmp["slash:department"]))
}

// syn: updatePeriod and updateFrequency yield the feed's suggested update
// interval in minutes.
func newSynHandler() *NsHandler {
	return &NsHandler{
		Prefixes:        []string{"syn"},
		URIs:            []string{"http://purl.org/rss/1.0/modules/syndication/"},
		ParseChannelTag: synParseChannelTag,
	}
}

func synParseChannelTag(ctx *Context, n *xmlquery.Node) {
	period := ctx.Subscription.DefaultInterval
	frequency := 1

	switch n.Data {
	case "updatePeriod":
		switch xmlutil.NodeText(n) {
		case "hourly":
			period = 60
		case "daily":
			period = 60 * 24
		case "weekly":
			period = 7 * 24 * 60
		case "monthly":
			period = 31 * 24 * 60
		case "yearly":
			period = 365 * 24 * 60
		}
	case "updateFrequency":
		if f, err := strconv.Atoi(xmlutil.NodeText(n)); err == nil {
			frequency = f
		}
	default:
		return
	}

	if frequency != 0 {
		period /= frequency
	}
	ctx.Subscription.SetDefaultInterval(period)
}

// admin: both tags carry their value in an rdf:resource attribute.
func newAdminHandler() *NsHandler {
	return &NsHandler{
		Prefixes:        []string{"admin"},
		URIs:            []string{"http://webns.net/mvcb/"},
		ParseChannelTag: adminParseChannelTag,
	}
}

func adminParseChannelTag(ctx *Context, n *xmlquery.Node) {
	value := xmlutil.Attr(n, "resource")
	if value == "" {
		return
	}

	switch n.Data {
	case "errorReportsTo":
		ctx.Subscription.Metadata.Set("errorReportsTo", value)
	case "generatorAgent":
		ctx.Subscription.Metadata.Set("feedgeneratorUri", value)
	}
}

// ag (aggregation): source and sourceURL combine into a linked HTML
// snippet, timestamp is an ISO 8601 date.
func newAgHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"ag"},
		URIs:         []string{"http://purl.org/rss/1.0/modules/aggregation/"},
		ParseItemTag: agParseItemTag,
	}
}

func agParseItemTag(ctx *Context, n *xmlquery.Node) {
	switch n.Data {
	case "source", "sourceURL":
		ctx.Tmp["ag:"+n.Data] = xmlutil.NodeText(n)

		source := ctx.Tmp["ag:source"]
		sourceURL := ctx.Tmp["ag:sourceURL"]
		var snippet string
		switch {
		case source != "" && sourceURL != "":
			snippet = fmt.Sprintf("<a href=\"%s\">%s</a>", sourceURL, source)
		case sourceURL != "":
			snippet = fmt.Sprintf("<a href=\"%s\">%s</a>", sourceURL, sourceURL)
		default:
			snippet = source
		}
		ctx.Item.Metadata.Set("agSource", snippet)
	case "timestamp":
		if t := dates.ParseISO8601(xmlutil.NodeText(n)); t != 0 {
			ctx.Item.Metadata.Set("agTimestamp", dates.FormatISO8601(t))
		}
	}
}

// cc / creativeCommons: the license URL becomes an HTML anchor. The RSS 1.0
// variant references the license as an rdf resource without text content.
func newCCHandler() *NsHandler {
	return &NsHandler{
		Prefixes: []string{"cc", "creativeCommons"},
		URIs: []string{
			"http://web.resource.org/cc/",
			"http://backend.userland.com/creativeCommonsRssModule",
		},
		ParseChannelTag: ccParseChannelTag,
		ParseItemTag:    ccParseItemTag,
	}
}

func ccLicense(n *xmlquery.Node) string {
	if n.Data != "license" {
		return ""
	}
	if url := xmlutil.NodeText(n); url != "" {
		return fmt.Sprintf("<a href=\"%s\">%s</a>", url, url)
	}
	return "Creative Commons"
}

func ccParseChannelTag(ctx *Context, n *xmlquery.Node) {
	if license := ccLicense(n); license != "" {
		ctx.Subscription.Metadata.Set("license", license)
	}
}

func ccParseItemTag(ctx *Context, n *xmlquery.Node) {
	if license := ccLicense(n); license != "" {
		ctx.Item.Metadata.Set("license", license)
	}
}

// fm: Freshmeat defines one tag, screenshot_url, shown as an image.
func newFMHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"fm"},
		URIs:         []string{"http://freshmeat.net/backend/fm-releases-0.1.dtd"},
		ParseItemTag: fmParseItemTag,
	}
}

func fmParseItemTag(ctx *Context, n *xmlquery.Node) {
	if n.Data != "screenshot_url" {
		return
	}
	if url := xmlutil.NodeText(n); url != "" {
		ctx.Item.Metadata.Set("fmScreenshot", url)
	}
}

// wfw: only the comment feed tag is supported. Both capitalizations occur
// in the wild.
func newWfwHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"wfw"},
		URIs:         []string{"http://wellformedweb.org/CommentAPI"},
		ParseItemTag: wfwParseItemTag,
	}
}

func wfwParseItemTag(ctx *Context, n *xmlquery.Node) {
	if n.Data != "commentRss" && n.Data != "commentRSS" {
		return
	}
	if url := xmlutil.NodeText(n); url != "" {
		ctx.Item.Metadata.Set("commentFeedUri", url)
	}
}

// trackback: the "ping" tag is ignored; "about" carries the URL either as
// an attribute (RSS 1.0) or as content (RSS 2.0).
func newTrackbackHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"trackback"},
		URIs:         []string{"http://madskills.com/public/xml/rss/module/trackback/"},
		ParseItemTag: trackbackParseItemTag,
	}
}

func trackbackParseItemTag(ctx *Context, n *xmlquery.Node) {
	if n.Data != "about" {
		return
	}

	url := xmlutil.Attr(n, "about")
	if url == "" {
		url = xmlutil.NodeText(n)
	}
	if url != "" {
		ctx.Item.Metadata.Append("related", url)
	}
}

// georss: just georss:point at the moment.
func newGeoRSSHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"georss"},
		URIs:         []string{"http://www.georss.org/georss"},
		ParseItemTag: geoRSSParseItemTag,
	}
}

func geoRSSParseItemTag(ctx *Context, n *xmlquery.Node) {
	if n.Data != "point" {
		return
	}
	if point := xmlutil.NodeText(n); point != "" {
		ctx.Item.Metadata.Set("point", point)
	}
}
