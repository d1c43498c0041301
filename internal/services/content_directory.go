package services

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/huin/goupnp/soap"

	"github.com/nerrad567/gray-logic-media/internal/catalog"
	"github.com/nerrad567/gray-logic-media/internal/upnp"
)

// Browse flags.
const (
	BrowseMetadata       = "BrowseMetadata"
	BrowseDirectChildren = "BrowseDirectChildren"
)

// ContentDirectory serves the catalog to control points.
//
// Supported actions: GetSearchCapabilities, GetSortCapabilities,
// GetSystemUpdateID and Browse. Search is not offered; both capability
// lists are empty.
type ContentDirectory struct {
	catalog Catalog
	logger  Logger

	mu         sync.RWMutex
	virtualURL string
}

// NewContentDirectory creates the service over c.
func NewContentDirectory(c Catalog) *ContentDirectory {
	return &ContentDirectory{catalog: c, logger: noopLogger{}}
}

// SetLogger sets the logger for the service.
func (cd *ContentDirectory) SetLogger(logger Logger) {
	cd.logger = logger
}

// SetVirtualURL sets the base URL media resources are served under.
// Items browsed before it is set carry no res element.
func (cd *ContentDirectory) SetVirtualURL(u string) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.virtualURL = strings.TrimSuffix(u, "/")
}

// ProcessAction handles one ContentDirectory action.
func (cd *ContentDirectory) ProcessAction(req *upnp.ActionRequest) error {
	ctx := context.Background()

	switch req.ActionName() {
	case "GetSearchCapabilities":
		req.AddResult("SearchCaps", "")
	case "GetSortCapabilities":
		req.AddResult("SortCaps", "")
	case "GetSystemUpdateID":
		id, err := cd.catalog.SystemUpdateID(ctx)
		if err != nil {
			return cannotProcess(err)
		}
		req.AddResult("Id", ui4(id))
	case "Browse":
		return cd.browse(ctx, req)
	default:
		return unknownAction(req)
	}
	return nil
}

// ProcessSubscription accepts a subscription with the current update ids.
func (cd *ContentDirectory) ProcessSubscription(req *upnp.SubscriptionRequest) error {
	id, err := cd.catalog.SystemUpdateID(context.Background())
	if err != nil {
		return cannotProcess(err)
	}
	req.Accept([]upnp.Arg{
		{Name: "SystemUpdateID", Value: ui4(id)},
		{Name: "ContainerUpdateIDs", Value: ""},
	})
	return nil
}

// ChangeVars builds the evented variables for a catalog change.
// ContainerUpdateIDs lists "id,updateID" pairs for the touched containers
// that still exist.
func (cd *ContentDirectory) ChangeVars(ctx context.Context, change catalog.Change) []upnp.Arg {
	ids := slices.Clone(change.ContainerIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var pairs []string
	for _, id := range ids {
		obj, err := cd.catalog.Object(ctx, id)
		if err != nil {
			if !errors.Is(err, catalog.ErrObjectNotFound) {
				cd.logger.Warn("reading container update id", "id", id, "error", err)
			}
			continue
		}
		if c, ok := obj.(*catalog.Container); ok {
			pairs = append(pairs, strconv.Itoa(id), ui4(c.UpdateID))
		}
	}

	return []upnp.Arg{
		{Name: "SystemUpdateID", Value: ui4(change.SystemUpdateID)},
		{Name: "ContainerUpdateIDs", Value: strings.Join(pairs, ",")},
	}
}

func (cd *ContentDirectory) browse(ctx context.Context, req *upnp.ActionRequest) error {
	rawID, err := requireArg(req, "ObjectID")
	if err != nil {
		return err
	}
	flag, err := requireArg(req, "BrowseFlag")
	if err != nil {
		return err
	}
	if flag != BrowseMetadata && flag != BrowseDirectChildren {
		return upnp.HandlerError(upnp.CodeInvalidArgs, "invalid browse flag "+flag)
	}
	start, err := optionalUi4(req, "StartingIndex")
	if err != nil {
		return err
	}
	count, err := optionalUi4(req, "RequestedCount")
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(rawID)
	if err != nil {
		return upnp.HandlerError(upnp.CodeNoSuchObject, "no such object "+rawID)
	}
	obj, err := cd.catalog.Object(ctx, id)
	if errors.Is(err, catalog.ErrObjectNotFound) {
		return upnp.HandlerError(upnp.CodeNoSuchObject, "no such object "+rawID)
	}
	if err != nil {
		return cannotProcess(err)
	}

	didl := newDIDLWriter(cd.resourceURL)
	var returned, total int

	if flag == BrowseMetadata {
		didl.write(obj)
		returned, total = 1, 1
	} else {
		if !obj.Type().IsContainer() {
			return upnp.HandlerError(upnp.CodeNoSuchContainer, "object "+rawID+" is not a container")
		}
		children, n, err := cd.catalog.Children(ctx, id, int(start), int(count))
		if err != nil {
			return cannotProcess(err)
		}
		for _, child := range children {
			didl.write(child)
		}
		returned, total = len(children), n
	}

	updateID, err := cd.updateID(ctx, obj)
	if err != nil {
		return cannotProcess(err)
	}

	req.AddResult("Result", didl.String())
	req.AddResult("NumberReturned", strconv.Itoa(returned))
	req.AddResult("TotalMatches", strconv.Itoa(total))
	req.AddResult("UpdateID", ui4(updateID))

	cd.logger.Debug("browse",
		"object_id", id,
		"flag", flag,
		"start", start,
		"count", count,
		"returned", returned,
		"total", total,
	)
	return nil
}

// updateID is the container's own update id, or the system update id for items.
func (cd *ContentDirectory) updateID(ctx context.Context, obj catalog.Object) (uint32, error) {
	if c, ok := obj.(*catalog.Container); ok {
		return c.UpdateID, nil
	}
	return cd.catalog.SystemUpdateID(ctx)
}

// resourceURL returns the URL an item's resource is served at. External
// URL items point at their own location.
func (cd *ContentDirectory) resourceURL(obj catalog.Object) string {
	if u, ok := obj.(*catalog.URLItem); ok && !u.Internal {
		return u.Location
	}
	cd.mu.RLock()
	base := cd.virtualURL
	cd.mu.RUnlock()
	if base == "" {
		return ""
	}
	return base + "/media/" + strconv.Itoa(obj.Attrs().ID)
}

func optionalUi4(req *upnp.ActionRequest, name string) (uint32, error) {
	raw, ok := req.Arg(name)
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := soap.UnmarshalUi4(raw)
	if err != nil {
		return 0, upnp.HandlerError(upnp.CodeInvalidArgs, "invalid "+name+" "+raw)
	}
	return v, nil
}

// cannotProcess reports a storage failure as error 720.
func cannotProcess(err error) error {
	return &upnp.Error{
		Kind:    upnp.KindHandler,
		Code:    upnp.CodeCannotProcess,
		Message: upnp.ErrorDescription(upnp.CodeCannotProcess),
		Err:     err,
	}
}
