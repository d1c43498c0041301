package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Repository defines catalog persistence. Besides whole-object reads it
// offers single-column lookups so callers that need one attribute avoid
// loading the full record.
type Repository interface {
	// GetObject retrieves a full object. Containers carry their child count.
	// Returns ErrObjectNotFound if the id does not exist.
	GetObject(ctx context.Context, id int) (Object, error)

	GetParentID(ctx context.Context, id int) (int, error)

	// GetRefID returns InvalidID for objects that reference nothing.
	GetRefID(ctx context.Context, id int) (int, error)

	GetObjectType(ctx context.Context, id int) (ObjectType, error)

	GetChildCount(ctx context.Context, id int) (int, error)

	// ListChildren returns one page of a container's direct children and
	// the total number of children. A limit of 0 returns everything
	// after offset. Containers sort before items, then by title.
	ListChildren(ctx context.Context, parentID, offset, limit int) ([]Object, int, error)

	// Create inserts obj. When its ID is InvalidID a new id is assigned
	// and written back into obj.
	Create(ctx context.Context, obj Object) error

	// Update replaces the stored fields of an existing object.
	Update(ctx context.Context, obj Object) error

	// Delete removes an object and everything below it, returning the
	// removed ids.
	Delete(ctx context.Context, id int) ([]int, error)

	// SystemUpdateID returns the catalog-wide change counter.
	SystemUpdateID(ctx context.Context) (uint32, error)
}

const objectColumns = `
	o.id, o.ref_id, o.parent_id, o.object_type, o.upnp_class, o.title,
	o.location, o.is_virtual, o.restricted, o.mime_type, o.size,
	o.update_id, o.searchable, o.metadata,
	(SELECT COUNT(*) FROM cds_objects c WHERE c.parent_id = o.id)`

// SQLiteRepository implements Repository on the cds_objects table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a catalog repository on an open connection
// whose schema has been migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetObject retrieves a full object by id.
func (r *SQLiteRepository) GetObject(ctx context.Context, id int) (Object, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+objectColumns+` FROM cds_objects o WHERE o.id = ?`, id)
	obj, err := scanObject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("querying object %d: %w", id, err)
	}
	return obj, nil
}

// GetParentID reads only the parent column.
func (r *SQLiteRepository) GetParentID(ctx context.Context, id int) (int, error) {
	var parentID int
	if err := r.queryColumn(ctx, "parent_id", id, &parentID); err != nil {
		return InvalidID, err
	}
	return parentID, nil
}

// GetRefID reads only the reference column.
func (r *SQLiteRepository) GetRefID(ctx context.Context, id int) (int, error) {
	var refID sql.NullInt64
	if err := r.queryColumn(ctx, "ref_id", id, &refID); err != nil {
		return InvalidID, err
	}
	if !refID.Valid {
		return InvalidID, nil
	}
	return int(refID.Int64), nil
}

// GetObjectType reads only the type flags.
func (r *SQLiteRepository) GetObjectType(ctx context.Context, id int) (ObjectType, error) {
	var t ObjectType
	if err := r.queryColumn(ctx, "object_type", id, &t); err != nil {
		return 0, err
	}
	return t, nil
}

// GetChildCount counts direct children of id.
func (r *SQLiteRepository) GetChildCount(ctx context.Context, id int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM cds_objects c WHERE c.parent_id = o.id) FROM cds_objects o WHERE o.id = ?`,
		id,
	).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrObjectNotFound
		}
		return 0, fmt.Errorf("counting children of %d: %w", id, err)
	}
	return n, nil
}

func (r *SQLiteRepository) queryColumn(ctx context.Context, column string, id int, dest any) error {
	err := r.db.QueryRowContext(ctx, `SELECT `+column+` FROM cds_objects WHERE id = ?`, id).Scan(dest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("querying %s of %d: %w", column, id, err)
	}
	return nil
}

// ListChildren returns a page of direct children.
func (r *SQLiteRepository) ListChildren(ctx context.Context, parentID, offset, limit int) ([]Object, int, error) {
	t, err := r.GetObjectType(ctx, parentID)
	if err != nil {
		return nil, 0, err
	}
	if !t.IsContainer() {
		return nil, 0, ErrNotContainer
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cds_objects WHERE parent_id = ?`, parentID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting children of %d: %w", parentID, err)
	}

	// SQLite treats a negative LIMIT as no limit.
	sqlLimit := -1
	if limit > 0 {
		sqlLimit = limit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+objectColumns+`
		FROM cds_objects o
		WHERE o.parent_id = ?
		ORDER BY (o.object_type & 1) DESC, o.title, o.id
		LIMIT ? OFFSET ?`,
		parentID, sqlLimit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing children of %d: %w", parentID, err)
	}
	defer rows.Close()

	var children []Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning child of %d: %w", parentID, err)
		}
		children = append(children, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating children of %d: %w", parentID, err)
	}
	return children, total, nil
}

// Create inserts a new object below an existing container.
func (r *SQLiteRepository) Create(ctx context.Context, obj Object) error {
	if err := Validate(obj); err != nil {
		return err
	}
	b := obj.Attrs()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := requireContainer(ctx, tx, b.ParentID); err != nil {
		return err
	}

	cols, err := objectValues(obj)
	if err != nil {
		return err
	}
	var id any
	if b.ID != InvalidID {
		id = b.ID
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO cds_objects (
			id, ref_id, parent_id, object_type, upnp_class, title, location,
			is_virtual, restricted, mime_type, size, update_id, searchable, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{id}, cols...)...,
	)
	if err != nil {
		return fmt.Errorf("inserting object: %w", err)
	}
	if b.ID == InvalidID {
		newID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading new object id: %w", err)
		}
		b.ID = int(newID)
	}

	if err := touchContainers(ctx, tx, b.ParentID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing object: %w", err)
	}
	return nil
}

// Update rewrites an existing object. Moving an object bumps the update
// ids of both the old and new parent.
func (r *SQLiteRepository) Update(ctx context.Context, obj Object) error {
	if err := Validate(obj); err != nil {
		return err
	}
	b := obj.Attrs()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var oldParent int
	if err := tx.QueryRowContext(ctx, `SELECT parent_id FROM cds_objects WHERE id = ?`, b.ID).Scan(&oldParent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("querying object %d: %w", b.ID, err)
	}
	if b.ID == RootID && b.ParentID != oldParent {
		return ErrRootObject
	}
	if b.ParentID != oldParent {
		if err := requireContainer(ctx, tx, b.ParentID); err != nil {
			return err
		}
	}

	cols, err := objectValues(obj)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cds_objects SET
			ref_id = ?, parent_id = ?, object_type = ?, upnp_class = ?, title = ?,
			location = ?, is_virtual = ?, restricted = ?, mime_type = ?, size = ?,
			update_id = ?, searchable = ?, metadata = ?
		WHERE id = ?`,
		append(cols, b.ID)...,
	)
	if err != nil {
		return fmt.Errorf("updating object %d: %w", b.ID, err)
	}

	touched := []int{b.ParentID}
	if b.ParentID != oldParent {
		touched = append(touched, oldParent)
	}
	if err := touchContainers(ctx, tx, touched...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing object: %w", err)
	}
	return nil
}

// Delete removes id and its whole subtree.
func (r *SQLiteRepository) Delete(ctx context.Context, id int) ([]int, error) {
	if id == RootID {
		return nil, ErrRootObject
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var parentID int
	if err := tx.QueryRowContext(ctx, `SELECT parent_id FROM cds_objects WHERE id = ?`, id).Scan(&parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("querying object %d: %w", id, err)
	}

	rows, err := tx.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT ?
			UNION ALL
			SELECT o.id FROM cds_objects o JOIN subtree s ON o.parent_id = s.id
		)
		SELECT id FROM subtree`, id)
	if err != nil {
		return nil, fmt.Errorf("collecting subtree of %d: %w", id, err)
	}
	var removed []int
	for rows.Next() {
		var child int
		if err := rows.Scan(&child); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning subtree of %d: %w", id, err)
		}
		removed = append(removed, child)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subtree of %d: %w", id, err)
	}

	for _, child := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cds_objects WHERE id = ?`, child); err != nil {
			return nil, fmt.Errorf("deleting object %d: %w", child, err)
		}
	}
	if err := touchContainers(ctx, tx, parentID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}
	return removed, nil
}

// SystemUpdateID returns the catalog-wide change counter.
func (r *SQLiteRepository) SystemUpdateID(ctx context.Context) (uint32, error) {
	var v uint32
	err := r.db.QueryRowContext(ctx, `SELECT value FROM cds_state WHERE key = 'system_update_id'`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("querying system update id: %w", err)
	}
	return v, nil
}

func requireContainer(ctx context.Context, tx *sql.Tx, id int) error {
	var t ObjectType
	if err := tx.QueryRowContext(ctx, `SELECT object_type FROM cds_objects WHERE id = ?`, id).Scan(&t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrParentNotFound
		}
		return fmt.Errorf("querying parent %d: %w", id, err)
	}
	if !t.IsContainer() {
		return fmt.Errorf("%w: parent %d", ErrNotContainer, id)
	}
	return nil
}

// touchContainers bumps the container update ids of the given containers
// and the system update id.
func touchContainers(ctx context.Context, tx *sql.Tx, ids ...int) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cds_objects SET update_id = update_id + 1 WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("bumping update id of %d: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE cds_state SET value = value + 1 WHERE key = 'system_update_id'`,
	); err != nil {
		return fmt.Errorf("bumping system update id: %w", err)
	}
	return nil
}

// objectValues returns the column values after id, in table order.
func objectValues(obj Object) ([]any, error) {
	b := obj.Attrs()

	metadata := b.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}

	var refID any
	if b.RefID != InvalidID {
		refID = b.RefID
	}
	var location any
	if b.Location != "" {
		location = b.Location
	}

	var (
		mimeType   any
		size       any
		updateID   uint32
		searchable bool
	)
	switch o := obj.(type) {
	case *Container:
		updateID = o.UpdateID
		searchable = o.Searchable
	case *Item:
		mimeType = o.MimeType
		size = o.Size
	case *URLItem:
		mimeType = o.MimeType
	}

	return []any{
		refID, b.ParentID, uint32(obj.Type()), b.UpnpClass, b.Title, location,
		b.Virtual, b.Restricted, mimeType, size, updateID, searchable, string(metaJSON),
	}, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanObject(row scanner) (Object, error) {
	var (
		b          Base
		refID      sql.NullInt64
		objectType ObjectType
		location   sql.NullString
		mimeType   sql.NullString
		size       sql.NullInt64
		updateID   uint32
		searchable bool
		metaJSON   string
		childCount int
	)
	if err := row.Scan(
		&b.ID, &refID, &b.ParentID, &objectType, &b.UpnpClass, &b.Title,
		&location, &b.Virtual, &b.Restricted, &mimeType, &size,
		&updateID, &searchable, &metaJSON, &childCount,
	); err != nil {
		return nil, err
	}

	b.RefID = InvalidID
	if refID.Valid {
		b.RefID = int(refID.Int64)
	}
	b.Location = location.String
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &b.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata of %d: %w", b.ID, err)
		}
	}

	obj, err := NewObject(objectType)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", b.ID, err)
	}
	switch o := obj.(type) {
	case *Container:
		o.Base = b
		o.ChildCount = childCount
		o.UpdateID = updateID
		o.Searchable = searchable
	case *Item:
		o.Base = b
		o.MimeType = mimeType.String
		o.Size = size.Int64
	case *URLItem:
		o.Base = b
		o.MimeType = mimeType.String
	}
	return obj, nil
}
