package services

import (
	"bytes"
	"encoding/xml"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-media/internal/catalog"
)

const didlHeader = `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"` +
	` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
	` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">`

// didlWriter renders catalog objects as a DIDL-Lite fragment.
type didlWriter struct {
	buf bytes.Buffer
	// resourceURL maps an item to the URL its resource is served at.
	resourceURL func(obj catalog.Object) string
}

func newDIDLWriter(resourceURL func(catalog.Object) string) *didlWriter {
	w := &didlWriter{resourceURL: resourceURL}
	w.buf.WriteString(didlHeader)
	return w
}

func (w *didlWriter) write(obj catalog.Object) {
	b := obj.Attrs()

	switch o := obj.(type) {
	case *catalog.Container:
		w.buf.WriteString("<container")
		w.attrs(b)
		w.attr("childCount", strconv.Itoa(o.ChildCount))
		w.attr("searchable", boolDigit(o.Searchable))
		w.buf.WriteString(">")
		w.properties(b)
		w.buf.WriteString("</container>")
	case *catalog.Item:
		w.buf.WriteString("<item")
		w.attrs(b)
		w.buf.WriteString(">")
		w.properties(b)
		w.resource(o.MimeType, o.Size, w.resourceURL(obj))
		w.buf.WriteString("</item>")
	case *catalog.URLItem:
		w.buf.WriteString("<item")
		w.attrs(b)
		w.buf.WriteString(">")
		w.properties(b)
		w.resource(o.MimeType, -1, w.resourceURL(obj))
		w.buf.WriteString("</item>")
	}
}

func (w *didlWriter) attrs(b *catalog.Base) {
	w.attr("id", strconv.Itoa(b.ID))
	w.attr("parentID", strconv.Itoa(b.ParentID))
	if b.RefID != catalog.InvalidID {
		w.attr("refID", strconv.Itoa(b.RefID))
	}
	w.attr("restricted", boolDigit(b.Restricted))
}

func (w *didlWriter) attr(name, value string) {
	w.buf.WriteString(" ")
	w.buf.WriteString(name)
	w.buf.WriteString(`="`)
	_ = xml.EscapeText(&w.buf, []byte(value))
	w.buf.WriteString(`"`)
}

func (w *didlWriter) element(name, value string) {
	w.buf.WriteString("<" + name + ">")
	_ = xml.EscapeText(&w.buf, []byte(value))
	w.buf.WriteString("</" + name + ">")
}

// properties writes the title, the class and every dc: or upnp: metadata
// entry, in key order.
func (w *didlWriter) properties(b *catalog.Base) {
	w.element("dc:title", b.Title)
	w.element("upnp:class", b.UpnpClass)

	keys := make([]string, 0, len(b.Metadata))
	for k := range b.Metadata {
		if validPropertyName(k) && k != "dc:title" && k != "upnp:class" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.element(k, b.Metadata[k])
	}
}

func (w *didlWriter) resource(mimeType string, size int64, url string) {
	if url == "" {
		return
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.buf.WriteString("<res")
	w.attr("protocolInfo", "http-get:*:"+mimeType+":*")
	if size >= 0 {
		w.attr("size", strconv.FormatInt(size, 10))
	}
	w.buf.WriteString(">")
	_ = xml.EscapeText(&w.buf, []byte(url))
	w.buf.WriteString("</res>")
}

func (w *didlWriter) String() string {
	return w.buf.String() + "</DIDL-Lite>"
}

// validPropertyName accepts prefixed names such as "dc:creator" whose
// local part is a plain identifier.
func validPropertyName(name string) bool {
	prefix, local, ok := strings.Cut(name, ":")
	if !ok || (prefix != "dc" && prefix != "upnp") || local == "" {
		return false
	}
	for _, r := range local {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func boolDigit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
