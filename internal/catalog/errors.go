package catalog

import "errors"

// Domain errors for the catalog package.
//
//	if errors.Is(err, catalog.ErrObjectNotFound) {
//	    // answer with "no such object"
//	}
var (
	// ErrObjectNotFound is returned when an object id does not exist.
	ErrObjectNotFound = errors.New("catalog: object not found")

	// ErrParentNotFound is returned when adding an object under a missing container.
	ErrParentNotFound = errors.New("catalog: parent not found")

	// ErrNotContainer is returned when children are requested from a leaf.
	ErrNotContainer = errors.New("catalog: not a container")

	// ErrInvalidObject is returned when object validation fails.
	ErrInvalidObject = errors.New("catalog: invalid object")

	// ErrInvalidObjectType is returned for object type flags that match no variant.
	ErrInvalidObjectType = errors.New("catalog: invalid object type")

	// ErrRootObject is returned when removing or re-parenting the root container.
	ErrRootObject = errors.New("catalog: root object is fixed")

	// ErrNoLocation is returned when an object has no derivable location.
	ErrNoLocation = errors.New("catalog: object has no location")
)
