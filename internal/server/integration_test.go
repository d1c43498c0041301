package server

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-media/internal/catalog"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-media/internal/services"
	"github.com/nerrad567/gray-logic-media/internal/upnp"
	_ "github.com/nerrad567/gray-logic-media/migrations"
)

// setupCatalog opens a migrated catalog in a temp directory.
func setupCatalog(t *testing.T) (*catalog.Store, *database.DB) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "catalog.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cache, err := catalog.NewCache(128)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	return catalog.NewStore(catalog.NewSQLiteRepository(db.DB), cache), db
}

func TestIntegration_BrowseThroughController(t *testing.T) {
	store, db := setupCatalog(t)
	ctx := context.Background()

	folderID, err := store.Add(ctx, &catalog.Container{Base: catalog.Base{
		ID:        catalog.InvalidID,
		ParentID:  catalog.RootID,
		RefID:     catalog.InvalidID,
		Title:     "Films",
		UpnpClass: "object.container.storageFolder",
		Location:  "/srv/films",
	}})
	if err != nil {
		t.Fatalf("Add(folder) error = %v", err)
	}
	itemID, err := store.Add(ctx, &catalog.Item{
		Base: catalog.Base{
			ID:        catalog.InvalidID,
			ParentID:  folderID,
			RefID:     catalog.InvalidID,
			Title:     "Night of the Lepus",
			UpnpClass: "object.item.videoItem.movie",
			Location:  "/srv/films/lepus.mkv",
		},
		MimeType: "video/x-matroska",
		Size:     4096,
	})
	if err != nil {
		t.Fatalf("Add(item) error = %v", err)
	}

	stack := newFakeStack()
	cd := services.NewContentDirectory(store)
	c, err := New(Deps{
		Config: testConfig(t),
		Stack:  stack,
		Services: Services{
			ContentDirectory:       cd,
			ConnectionManager:      services.NewConnectionManager([]string{"http-get:*:video/x-matroska:*"}),
			MediaReceiverRegistrar: services.NewMediaReceiverRegistrar(),
		},
		ContentHandler: services.NewContentHandler(store),
		Storage:        db,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Shutdown() //nolint:errcheck // Test cleanup

	ev := actionEvent(testUDN, services.ContentDirectoryID, "Browse",
		upnp.Arg{Name: "ObjectID", Value: "0"},
		upnp.Arg{Name: "BrowseFlag", Value: services.BrowseDirectChildren},
		upnp.Arg{Name: "Filter", Value: "*"},
		upnp.Arg{Name: "StartingIndex", Value: "0"},
		upnp.Arg{Name: "RequestedCount", Value: "0"},
		upnp.Arg{Name: "SortCriteria", Value: ""},
	)
	if code := stack.cb(upnp.EventActionRequest, ev); code != 0 {
		t.Fatalf("Browse root = %d (%s)", code, ev.ErrStr)
	}
	result := resultArgs(ev)
	if result["NumberReturned"] != "1" || result["TotalMatches"] != "1" {
		t.Errorf("root counts = %s/%s, want 1/1", result["NumberReturned"], result["TotalMatches"])
	}
	if !strings.Contains(result["Result"], "Films") {
		t.Errorf("root listing does not contain the folder:\n%s", result["Result"])
	}

	ev = actionEvent(testUDN, services.ContentDirectoryID, "Browse",
		upnp.Arg{Name: "ObjectID", Value: strconv.Itoa(folderID)},
		upnp.Arg{Name: "BrowseFlag", Value: services.BrowseDirectChildren},
	)
	if code := stack.cb(upnp.EventActionRequest, ev); code != 0 {
		t.Fatalf("Browse folder = %d (%s)", code, ev.ErrStr)
	}
	result = resultArgs(ev)
	wantRes := "http://192.0.2.10:49152/content/media/" + strconv.Itoa(itemID)
	if !strings.Contains(result["Result"], wantRes) {
		t.Errorf("item resource %q missing from:\n%s", wantRes, result["Result"])
	}

	ev = actionEvent(testUDN, services.ContentDirectoryID, "Browse",
		upnp.Arg{Name: "ObjectID", Value: strconv.Itoa(itemID)},
		upnp.Arg{Name: "BrowseFlag", Value: services.BrowseDirectChildren},
	)
	if code := stack.cb(upnp.EventActionRequest, ev); code != upnp.CodeNoSuchContainer {
		t.Errorf("Browse children of item = %d, want %d", code, upnp.CodeNoSuchContainer)
	}

	ev = actionEvent(testUDN, services.ContentDirectoryID, "Browse",
		upnp.Arg{Name: "ObjectID", Value: "9999"},
		upnp.Arg{Name: "BrowseFlag", Value: services.BrowseMetadata},
	)
	if code := stack.cb(upnp.EventActionRequest, ev); code != upnp.CodeNoSuchObject {
		t.Errorf("Browse unknown object = %d, want %d", code, upnp.CodeNoSuchObject)
	}
}

func TestIntegration_CatalogChangesAreEvented(t *testing.T) {
	store, _ := setupCatalog(t)
	ctx := context.Background()

	stack := newFakeStack()
	cd := services.NewContentDirectory(store)
	c, err := New(Deps{
		Config: testConfig(t),
		Stack:  stack,
		Services: Services{
			ContentDirectory:       cd,
			ConnectionManager:      services.NewConnectionManager(nil),
			MediaReceiverRegistrar: services.NewMediaReceiverRegistrar(),
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	store.OnChange(func(ch catalog.Change) {
		if err := c.Notify(services.ContentDirectoryID, cd.ChangeVars(ctx, ch)); err != nil {
			t.Logf("notify skipped: %v", err)
		}
	})

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Shutdown() //nolint:errcheck // Test cleanup

	if _, err := store.Add(ctx, &catalog.Container{Base: catalog.Base{
		ID:        catalog.InvalidID,
		ParentID:  catalog.RootID,
		RefID:     catalog.InvalidID,
		Title:     "Music",
		UpnpClass: "object.container.storageFolder",
	}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if len(stack.notified) != 1 {
		t.Fatalf("notifications = %d, want 1", len(stack.notified))
	}
	vars := stack.notified[0].vars
	if len(vars) != 2 || vars[0].Name != "SystemUpdateID" || vars[1].Name != "ContainerUpdateIDs" {
		t.Fatalf("vars = %+v", vars)
	}
	if !strings.HasPrefix(vars[1].Value, "0,") {
		t.Errorf("ContainerUpdateIDs = %q, want the root container", vars[1].Value)
	}
}

func resultArgs(ev *upnp.ActionEvent) map[string]string {
	m := make(map[string]string, len(ev.Result))
	for _, a := range ev.Result {
		m[a.Name] = a.Value
	}
	return m
}
