package catalog

import (
	"context"
	"fmt"
	"sync"
)

// Change describes a committed catalog mutation.
type Change struct {
	SystemUpdateID uint32
	// ContainerIDs lists the containers whose children changed.
	ContainerIDs []int
}

// Store is the catalog access layer. It answers attribute lookups from
// the cache when the attribute is known and falls back to the repository
// otherwise, recording what it learned.
//
// All methods are safe for concurrent use.
type Store struct {
	repo   Repository
	cache  *Cache
	logger Logger

	listenerMu sync.RWMutex
	listeners  []func(Change)
}

// NewStore creates a store over repo using cache for partial lookups.
func NewStore(repo Repository, cache *Cache) *Store {
	return &Store{
		repo:   repo,
		cache:  cache,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// OnChange registers fn to run after every committed mutation.
func (s *Store) OnChange(fn func(Change)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ParentID returns the parent id of id.
func (s *Store) ParentID(ctx context.Context, id int) (int, error) {
	if e, ok := s.cache.Get(id); ok {
		if v, known := e.ParentID(); known {
			return v, nil
		}
	}
	gen := s.cache.Generation()
	v, err := s.repo.GetParentID(ctx, id)
	if err != nil {
		return InvalidID, err
	}
	s.cache.UpdateIf(id, gen, func(e *CacheEntry) { e.SetParentID(v) })
	return v, nil
}

// RefID returns the id id refers to, or InvalidID.
func (s *Store) RefID(ctx context.Context, id int) (int, error) {
	if e, ok := s.cache.Get(id); ok {
		if v, known := e.RefID(); known {
			return v, nil
		}
	}
	gen := s.cache.Generation()
	v, err := s.repo.GetRefID(ctx, id)
	if err != nil {
		return InvalidID, err
	}
	s.cache.UpdateIf(id, gen, func(e *CacheEntry) { e.SetRefID(v) })
	return v, nil
}

// ObjectType returns the type flags of id.
func (s *Store) ObjectType(ctx context.Context, id int) (ObjectType, error) {
	if e, ok := s.cache.Get(id); ok {
		if v, known := e.ObjectType(); known {
			return v, nil
		}
	}
	gen := s.cache.Generation()
	v, err := s.repo.GetObjectType(ctx, id)
	if err != nil {
		return 0, err
	}
	s.cache.UpdateIf(id, gen, func(e *CacheEntry) { e.SetObjectType(v) })
	return v, nil
}

// ChildCount returns the number of direct children of id.
func (s *Store) ChildCount(ctx context.Context, id int) (int, error) {
	if e, ok := s.cache.Get(id); ok {
		if v, known := e.ChildCount(); known {
			return v, nil
		}
	}
	gen := s.cache.Generation()
	v, err := s.repo.GetChildCount(ctx, id)
	if err != nil {
		return 0, err
	}
	s.cache.UpdateIf(id, gen, func(e *CacheEntry) { e.SetChildCount(v) })
	return v, nil
}

// Location returns the prefixed location of id ("V" or "F" followed by
// the path). URL and active items have no location and yield ErrNoLocation.
func (s *Store) Location(ctx context.Context, id int) (string, error) {
	if e, ok := s.cache.Get(id); ok {
		if v, known := e.Location(); known {
			return v, nil
		}
		if e.KnowsObject() {
			return "", ErrNoLocation
		}
	}
	obj, err := s.Object(ctx, id)
	if err != nil {
		return "", err
	}
	e := NewCacheEntry()
	e.SetObject(obj)
	if v, known := e.Location(); known {
		return v, nil
	}
	return "", ErrNoLocation
}

// IsVirtual reports whether id is a virtual object.
func (s *Store) IsVirtual(ctx context.Context, id int) (bool, error) {
	if e, ok := s.cache.Get(id); ok {
		if v, known := e.Virtual(); known {
			return v, nil
		}
	}
	obj, err := s.Object(ctx, id)
	if err != nil {
		return true, err
	}
	return obj.Attrs().Virtual, nil
}

// Object returns a copy of the full object.
func (s *Store) Object(ctx context.Context, id int) (Object, error) {
	if e, ok := s.cache.Get(id); ok {
		if obj, known := e.Object(); known {
			return obj, nil
		}
	}
	gen := s.cache.Generation()
	obj, err := s.repo.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(gen, obj)
	return obj, nil
}

// Children returns one page of the direct children of parentID and the
// total child count.
func (s *Store) Children(ctx context.Context, parentID, offset, limit int) ([]Object, int, error) {
	gen := s.cache.Generation()
	children, total, err := s.repo.ListChildren(ctx, parentID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	for _, child := range children {
		s.remember(gen, child)
	}
	s.cache.UpdateIf(parentID, gen, func(e *CacheEntry) { e.SetChildCount(total) })
	return children, total, nil
}

// remember caches an object loaded after generation gen. The fill is
// dropped when a mutation invalidated the object in the meantime.
func (s *Store) remember(gen uint64, obj Object) {
	s.cache.UpdateIf(obj.Attrs().ID, gen, func(e *CacheEntry) {
		e.SetObject(obj)
		if c, ok := obj.(*Container); ok {
			e.SetChildCount(c.ChildCount)
		}
	})
}

// Add stores a new object and returns its id.
func (s *Store) Add(ctx context.Context, obj Object) (int, error) {
	obj = obj.Clone()
	if err := s.repo.Create(ctx, obj); err != nil {
		return InvalidID, fmt.Errorf("adding object: %w", err)
	}
	b := obj.Attrs()
	s.invalidate(b.ParentID)
	s.logger.Debug("catalog object added", "id", b.ID, "parent_id", b.ParentID, "type", obj.Type().String())
	s.notify(ctx, b.ParentID)
	return b.ID, nil
}

// Update replaces an existing object.
func (s *Store) Update(ctx context.Context, obj Object) error {
	b := obj.Attrs()
	oldParent, err := s.ParentID(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("updating object %d: %w", b.ID, err)
	}
	if err := s.repo.Update(ctx, obj); err != nil {
		return fmt.Errorf("updating object %d: %w", b.ID, err)
	}

	touched := []int{b.ParentID}
	if oldParent != b.ParentID {
		touched = append(touched, oldParent)
	}
	s.invalidate(append([]int{b.ID}, touched...)...)
	s.notify(ctx, touched...)
	return nil
}

// Remove deletes an object and its subtree.
func (s *Store) Remove(ctx context.Context, id int) error {
	parentID, err := s.ParentID(ctx, id)
	if err != nil {
		return fmt.Errorf("removing object %d: %w", id, err)
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("removing object %d: %w", id, err)
	}
	s.invalidate(append(removed, parentID)...)
	s.logger.Debug("catalog object removed", "id", id, "subtree", len(removed))
	s.notify(ctx, parentID)
	return nil
}

// SystemUpdateID returns the catalog-wide change counter.
func (s *Store) SystemUpdateID(ctx context.Context) (uint32, error) {
	return s.repo.SystemUpdateID(ctx)
}

// CacheStats returns cache hit and miss counters.
func (s *Store) CacheStats() (hits, misses uint64) {
	return s.cache.Stats()
}

func (s *Store) invalidate(ids ...int) {
	for _, id := range ids {
		s.cache.Remove(id)
	}
}

func (s *Store) notify(ctx context.Context, containerIDs ...int) {
	s.listenerMu.RLock()
	listeners := s.listeners
	s.listenerMu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	updateID, err := s.repo.SystemUpdateID(ctx)
	if err != nil {
		s.logger.Warn("reading system update id", "error", err)
		return
	}
	change := Change{SystemUpdateID: updateID, ContainerIDs: containerIDs}
	for _, fn := range listeners {
		fn(change)
	}
}
