package catalog

import (
	"fmt"
	"maps"
	"strings"
)

// ObjectType is the bit-flag tag stored with every catalog object.
type ObjectType uint32

// Object type flags. A single object combines several of them, for
// example an external link is TypeItem|TypeExternalURL.
const (
	TypeContainer ObjectType = 1 << iota
	TypeItem
	TypeActiveItem
	TypeExternalURL
	TypeInternalURL
)

// Well-known object identifiers.
const (
	// InvalidID marks an unset parent or reference.
	InvalidID = -1

	// RootID is the catalog root container.
	RootID = 0
)

// IsContainer reports whether the container flag is set.
func (t ObjectType) IsContainer() bool {
	return t&TypeContainer != 0
}

// IsItem reports whether the item flag is set.
func (t ObjectType) IsItem() bool {
	return t&TypeItem != 0
}

// IsPureItem reports whether t is exactly TypeItem. Active and URL items
// are not pure.
func (t ObjectType) IsPureItem() bool {
	return t == TypeItem
}

// IsURLItem reports whether t describes a leaf pointing at a URL.
func (t ObjectType) IsURLItem() bool {
	return t.IsItem() && t&(TypeExternalURL|TypeInternalURL) != 0
}

// String renders the set flags, e.g. "item|active".
func (t ObjectType) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		flag ObjectType
		name string
	}{
		{TypeContainer, "container"},
		{TypeItem, "item"},
		{TypeActiveItem, "active"},
		{TypeExternalURL, "external_url"},
		{TypeInternalURL, "internal_url"},
	} {
		if t&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Base holds the fields every catalog object carries.
type Base struct {
	ID       int
	ParentID int
	// RefID points at the original object when this one is a virtual
	// reference; InvalidID otherwise.
	RefID int

	Title     string
	UpnpClass string

	// Location is the filesystem path for containers and pure items, or
	// the URL for URL items.
	Location string

	Virtual    bool
	Restricted bool

	// Metadata holds DIDL-Lite properties such as dc:creator or upnp:album.
	Metadata map[string]string
}

// Object is one of the catalog variants: *Container, *Item or *URLItem.
type Object interface {
	// Attrs returns the shared fields. The pointer aliases the object.
	Attrs() *Base

	// Type returns the object type flags.
	Type() ObjectType

	// Clone returns an independent copy of the same variant.
	Clone() Object

	sealed()
}

// Container is a browsable folder.
type Container struct {
	Base
	ChildCount int
	// UpdateID increases every time a direct child is added or removed.
	UpdateID   uint32
	Searchable bool
}

// Item is a leaf backed by a file on disk.
type Item struct {
	Base
	MimeType string
	Size     int64
	// Active items run an action when played.
	Active bool
}

// URLItem is a leaf whose resource lives at a URL rather than a local file.
type URLItem struct {
	Base
	MimeType string
	// Internal URLs are served by this device; external ones point elsewhere.
	Internal bool
}

func (c *Container) Attrs() *Base { return &c.Base }
func (i *Item) Attrs() *Base      { return &i.Base }
func (u *URLItem) Attrs() *Base   { return &u.Base }

func (c *Container) Type() ObjectType { return TypeContainer }

func (i *Item) Type() ObjectType {
	if i.Active {
		return TypeItem | TypeActiveItem
	}
	return TypeItem
}

func (u *URLItem) Type() ObjectType {
	if u.Internal {
		return TypeItem | TypeInternalURL
	}
	return TypeItem | TypeExternalURL
}

func (c *Container) Clone() Object {
	cpy := *c
	cpy.Base = c.Base.clone()
	return &cpy
}

func (i *Item) Clone() Object {
	cpy := *i
	cpy.Base = i.Base.clone()
	return &cpy
}

func (u *URLItem) Clone() Object {
	cpy := *u
	cpy.Base = u.Base.clone()
	return &cpy
}

func (*Container) sealed() {}
func (*Item) sealed()      {}
func (*URLItem) sealed()   {}

func (b Base) clone() Base {
	b.Metadata = maps.Clone(b.Metadata)
	return b
}

// NewObject returns an empty object of the variant t describes, with
// ParentID and RefID set to InvalidID.
func NewObject(t ObjectType) (Object, error) {
	empty := Base{ID: InvalidID, ParentID: InvalidID, RefID: InvalidID}

	switch {
	case t == TypeContainer:
		return &Container{Base: empty}, nil
	case t.IsPureItem():
		return &Item{Base: empty}, nil
	case t == TypeItem|TypeActiveItem:
		return &Item{Base: empty, Active: true}, nil
	case t == TypeItem|TypeExternalURL:
		empty.Virtual = true
		return &URLItem{Base: empty}, nil
	case t == TypeItem|TypeInternalURL:
		empty.Virtual = true
		return &URLItem{Base: empty, Internal: true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidObjectType, t)
	}
}

// Validate checks the fields a catalog object must carry before it is stored.
func Validate(obj Object) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", ErrInvalidObject)
	}
	b := obj.Attrs()
	if b.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidObject)
	}
	if b.UpnpClass == "" {
		return fmt.Errorf("%w: upnp class is required", ErrInvalidObject)
	}
	if b.ParentID == InvalidID && b.ID != RootID {
		return fmt.Errorf("%w: parent id is required", ErrInvalidObject)
	}
	if b.ParentID == b.ID && b.ID != InvalidID {
		return fmt.Errorf("%w: object cannot be its own parent", ErrInvalidObject)
	}

	switch o := obj.(type) {
	case *Container:
		if !strings.HasPrefix(o.UpnpClass, "object.container") {
			return fmt.Errorf("%w: container class %q", ErrInvalidObject, o.UpnpClass)
		}
	case *Item:
		if !strings.HasPrefix(o.UpnpClass, "object.item") {
			return fmt.Errorf("%w: item class %q", ErrInvalidObject, o.UpnpClass)
		}
		if o.Location == "" && !o.Virtual {
			return fmt.Errorf("%w: file item needs a location", ErrInvalidObject)
		}
	case *URLItem:
		if !strings.HasPrefix(o.UpnpClass, "object.item") {
			return fmt.Errorf("%w: item class %q", ErrInvalidObject, o.UpnpClass)
		}
		if o.Location == "" {
			return fmt.Errorf("%w: url item needs a url", ErrInvalidObject)
		}
	}
	return nil
}
