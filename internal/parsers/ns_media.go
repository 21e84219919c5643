package parsers

import (
	"fmt"

	"github.com/antchfx/xmlquery"

	"feed-aggregator/internal/xmlutil"
)

// media (Yahoo Media RSS): media:content url attributes become enclosures.
func newMediaHandler() *NsHandler {
	return &NsHandler{
		Prefixes:     []string{"media"},
		URIs:         []string{"http://search.yahoo.com/mrss"},
		ParseItemTag: mediaParseItemTag,
	}
}

func mediaParseItemTag(ctx *Context, n *xmlquery.Node) {
	if n.Data != "content" {
		return
	}
	if url := xmlutil.Attr(n, "url"); url != "" {
		ctx.AddEnclosure(url)
	}
}

// photo / pb: thumbnail and imgsrc combine into one "photo" entry of the
// form "thumbnail,imgsrc". Without a thumbnail nothing is stored.
func newPhotoHandler() *NsHandler {
	return &NsHandler{
		Prefixes: []string{"photo", "pb"},
		URIs: []string{
			"http://www.pheed.com/pheed/",
			"http://snaplog.com/backend/PhotoBlog.html",
		},
		ParseItemTag: photoParseItemTag,
	}
}

func photoParseItemTag(ctx *Context, n *xmlquery.Node) {
	switch n.Data {
	case "thumbnail", "thumb":
		if value := xmlutil.NodeText(n); value != "" {
			ctx.Tmp["photo:thumbnail"] = value
		}
	case "imgsrc":
		if value := xmlutil.NodeText(n); value != "" {
			ctx.Tmp["photo:imgsrc"] = value
		}
	default:
		return
	}

	thumbnail := ctx.Tmp["photo:thumbnail"]
	if thumbnail == "" {
		return
	}
	ctx.Item.Metadata.Set("photo", fmt.Sprintf("%s,%s", thumbnail, ctx.Tmp["photo:imgsrc"]))
}
