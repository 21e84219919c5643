package parsers

import (
	"github.com/antchfx/xmlquery"
)

// TagFunc handles a single namespaced tag by mutating the parse context.
type TagFunc func(ctx *Context, n *xmlquery.Node)

// NsHandler claims all tags of one XML namespace. Handlers are stateless;
// per-item state goes into the context's scratch dictionary.
type NsHandler struct {
	// Prefixes are the conventional namespace prefixes, used as a fallback
	// when a feed omits the namespace declaration.
	Prefixes []string
	URIs     []string

	ParseChannelTag TagFunc
	ParseItemTag    TagFunc
}

// Registry resolves tags to namespace handlers. It is written only during
// initialization and read-only afterwards, so parsing needs no locking.
type Registry struct {
	byPrefix map[string]*NsHandler
	byURI    map[string]*NsHandler
}

// NewRegistry builds a registry from the given handlers.
func NewRegistry(handlers ...*NsHandler) *Registry {
	r := &Registry{
		byPrefix: make(map[string]*NsHandler),
		byURI:    make(map[string]*NsHandler),
	}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds a handler under all its prefixes and URIs.
func (r *Registry) Register(h *NsHandler) {
	for _, p := range h.Prefixes {
		r.byPrefix[p] = h
	}
	for _, u := range h.URIs {
		r.byURI[u] = h
	}
}

// Resolve finds the handler for a node's namespace. A URI match is
// preferred over a prefix match.
func (r *Registry) Resolve(n *xmlquery.Node) *NsHandler {
	if n.NamespaceURI != "" {
		if h, ok := r.byURI[n.NamespaceURI]; ok {
			return h
		}
	}
	if n.Prefix != "" {
		if h, ok := r.byPrefix[n.Prefix]; ok {
			return h
		}
	}
	return nil
}

// HandleChannelTag dispatches a channel-level tag. It returns true when a
// handler claimed the tag, even if the handler has no channel hook, so the
// format parser does not misinterpret foreign tags.
func (r *Registry) HandleChannelTag(ctx *Context, n *xmlquery.Node) bool {
	h := r.Resolve(n)
	if h == nil {
		return false
	}
	if h.ParseChannelTag != nil {
		h.ParseChannelTag(ctx, n)
	}
	return true
}

// HandleItemTag dispatches an item-level tag.
func (r *Registry) HandleItemTag(ctx *Context, n *xmlquery.Node) bool {
	h := r.Resolve(n)
	if h == nil {
		return false
	}
	if h.ParseItemTag != nil {
		h.ParseItemTag(ctx, n)
	}
	return true
}
