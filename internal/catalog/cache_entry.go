package catalog

// Location prefixes distinguish a virtual container's path from a real
// filesystem path.
const (
	LocationVirtualPrefix = "V"
	LocationFilePrefix    = "F"
)

// CacheEntry holds what is currently known about one catalog object.
//
// Each field is independently known or unknown. Getters return the value
// together with a known flag and callers must check the flag; an unknown
// field's value carries no meaning. SetObject is the only method that makes
// several fields known at once.
//
// A CacheEntry is not safe for concurrent mutation. The Cache copies
// entries on write so readers never observe a partially updated entry.
type CacheEntry struct {
	parentID   Optional[int]
	refID      Optional[int]
	childCount Optional[int]
	objectType Optional[ObjectType]
	virtual    Optional[bool]
	location   Optional[string]
	object     Object
}

// NewCacheEntry returns an entry with every field unknown.
func NewCacheEntry() *CacheEntry {
	return &CacheEntry{}
}

// SetObject stores a copy of obj and derives the parent id, ref id,
// object type, virtual flag and location from it.
//
// Location is "V" or "F" plus the path for a container (depending on
// whether it is virtual), "F" plus the path for a pure item, and unknown
// for URL items.
func (e *CacheEntry) SetObject(obj Object) {
	snapshot := obj.Clone()
	b := snapshot.Attrs()
	t := snapshot.Type()

	e.object = snapshot
	e.parentID = Some(b.ParentID)
	e.refID = Some(b.RefID)
	e.objectType = Some(t)
	e.virtual = Some(b.Virtual)

	switch {
	case t.IsContainer():
		prefix := LocationFilePrefix
		if b.Virtual {
			prefix = LocationVirtualPrefix
		}
		e.location = Some(prefix + b.Location)
	case t.IsPureItem():
		e.location = Some(LocationFilePrefix + b.Location)
	default:
		e.location = Optional[string]{}
	}
}

// Object returns a copy of the stored snapshot.
func (e *CacheEntry) Object() (Object, bool) {
	if e.object == nil {
		return nil, false
	}
	return e.object.Clone(), true
}

// KnowsObject reports whether a full snapshot is stored.
func (e *CacheEntry) KnowsObject() bool { return e.object != nil }

// SetParentID records the parent id.
func (e *CacheEntry) SetParentID(id int) {
	e.parentID = Some(id)
}

func (e *CacheEntry) SetRefID(id int) {
	e.refID = Some(id)
}

func (e *CacheEntry) SetChildCount(n int) {
	e.childCount = Some(n)
}

func (e *CacheEntry) SetObjectType(t ObjectType) {
	e.objectType = Some(t)
}

func (e *CacheEntry) SetVirtual(virtual bool) {
	e.virtual = Some(virtual)
}

func (e *CacheEntry) SetLocation(location string) {
	e.location = Some(location)
}

// ParentID returns the parent id and whether it is known.
func (e *CacheEntry) ParentID() (int, bool) {
	return e.parentID.Get()
}

func (e *CacheEntry) RefID() (int, bool) {
	return e.refID.Get()
}

func (e *CacheEntry) ChildCount() (int, bool) {
	return e.childCount.Get()
}

func (e *CacheEntry) ObjectType() (ObjectType, bool) {
	return e.objectType.Get()
}

func (e *CacheEntry) Location() (string, bool) {
	return e.location.Get()
}

// Virtual returns the virtual flag. Until it is set the entry assumes the
// object is virtual and reports (true, false).
func (e *CacheEntry) Virtual() (bool, bool) {
	return e.virtual.OrElse(true), e.virtual.Known()
}

func (e *CacheEntry) KnowsParentID() bool   { return e.parentID.Known() }
func (e *CacheEntry) KnowsRefID() bool      { return e.refID.Known() }
func (e *CacheEntry) KnowsChildCount() bool { return e.childCount.Known() }
func (e *CacheEntry) KnowsObjectType() bool { return e.objectType.Known() }
func (e *CacheEntry) KnowsVirtual() bool    { return e.virtual.Known() }
func (e *CacheEntry) KnowsLocation() bool   { return e.location.Known() }

// Debug logs the known state of every field at debug level.
func (e *CacheEntry) Debug(logger Logger) {
	virtual, knowsVirtual := e.Virtual()
	logger.Debug("cache entry",
		"knows_parent_id", e.parentID.Known(), "parent_id", e.parentID.OrElse(InvalidID),
		"knows_ref_id", e.refID.Known(), "ref_id", e.refID.OrElse(InvalidID),
		"knows_object", e.KnowsObject(),
		"knows_child_count", e.childCount.Known(), "child_count", e.childCount.OrElse(0),
		"knows_object_type", e.objectType.Known(), "object_type", e.objectType.OrElse(0).String(),
		"knows_location", e.location.Known(), "location", e.location.OrElse(""),
		"knows_virtual", knowsVirtual, "virtual", virtual,
	)
}

// clone returns a copy that shares no mutable state with e.
func (e *CacheEntry) clone() *CacheEntry {
	cpy := *e
	if e.object != nil {
		cpy.object = e.object.Clone()
	}
	return &cpy
}
