package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/udisondev/navgrid/internal/navgrid"
)

var (
	ErrVolumeNotFound    = errors.New("db: exclusion volume not found")
	ErrUnsupportedVolume = errors.New("db: unsupported exclusion volume type")
)

const (
	shapeSphere = "sphere"
	shapeBoxes  = "shape"
)

// VolumeStore persists exclusion volumes in the exclusion_volumes table.
type VolumeStore struct {
	pool *pgxpool.Pool
}

// NewVolumeStore creates a new volume store
func NewVolumeStore(pool *pgxpool.Pool) *VolumeStore {
	return &VolumeStore{pool: pool}
}

// volumeRow mirrors one exclusion_volumes row.
type volumeRow struct {
	id              uuid.UUID
	kind            string
	shape           string
	center          r3.Vec
	radius          float64
	min, max        r3.Vec
	children        []float64
	includeChildren bool
}

func rowFromVolume(v navgrid.ExclusionVolume) (volumeRow, error) {
	row := volumeRow{id: v.ID(), kind: v.Kind().String(), children: []float64{}}
	switch vol := v.(type) {
	case *navgrid.SphereVolume:
		row.shape = shapeSphere
		row.center = vol.Center()
		row.radius = vol.Radius()
	case *navgrid.ShapeVolume:
		root := vol.Root()
		row.shape = shapeBoxes
		row.min, row.max = root.Min, root.Max
		for _, ch := range vol.Children() {
			row.children = append(row.children,
				ch.Min.X, ch.Min.Y, ch.Min.Z, ch.Max.X, ch.Max.Y, ch.Max.Z)
		}
		row.includeChildren = vol.IncludeChildren()
	default:
		return volumeRow{}, fmt.Errorf("%w: %T", ErrUnsupportedVolume, v)
	}
	return row, nil
}

func (row volumeRow) volume() (navgrid.ExclusionVolume, error) {
	kind, ok := navgrid.ParseVolumeKind(row.kind)
	if !ok {
		return nil, fmt.Errorf("volume %s has unknown kind %q", row.id, row.kind)
	}
	switch row.shape {
	case shapeSphere:
		return navgrid.NewSphereVolumeWithID(row.id, kind, row.center, row.radius), nil
	case shapeBoxes:
		if len(row.children)%6 != 0 {
			return nil, fmt.Errorf("volume %s has %d child values, want a multiple of 6", row.id, len(row.children))
		}
		children := make([]r3.Box, 0, len(row.children)/6)
		for i := 0; i < len(row.children); i += 6 {
			c := row.children[i : i+6]
			children = append(children, r3.Box{
				Min: r3.Vec{X: c[0], Y: c[1], Z: c[2]},
				Max: r3.Vec{X: c[3], Y: c[4], Z: c[5]},
			})
		}
		root := r3.Box{Min: row.min, Max: row.max}
		return navgrid.NewShapeVolumeWithID(row.id, kind, root, children, row.includeChildren), nil
	default:
		return nil, fmt.Errorf("volume %s has unknown shape %q", row.id, row.shape)
	}
}

const volumeColumns = `id, kind, shape, center_x, center_y, center_z, radius,
		       min_x, min_y, min_z, max_x, max_y, max_z, children, include_children`

func scanVolume(row pgx.Row) (navgrid.ExclusionVolume, error) {
	var r volumeRow
	if err := row.Scan(
		&r.id, &r.kind, &r.shape,
		&r.center.X, &r.center.Y, &r.center.Z, &r.radius,
		&r.min.X, &r.min.Y, &r.min.Z, &r.max.X, &r.max.Y, &r.max.Z,
		&r.children, &r.includeChildren,
	); err != nil {
		return nil, err
	}
	return r.volume()
}

// Save inserts v or replaces the stored volume with the same id.
func (s *VolumeStore) Save(ctx context.Context, v navgrid.ExclusionVolume) error {
	row, err := rowFromVolume(v)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO exclusion_volumes (` + volumeColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			shape = EXCLUDED.shape,
			center_x = EXCLUDED.center_x,
			center_y = EXCLUDED.center_y,
			center_z = EXCLUDED.center_z,
			radius = EXCLUDED.radius,
			min_x = EXCLUDED.min_x,
			min_y = EXCLUDED.min_y,
			min_z = EXCLUDED.min_z,
			max_x = EXCLUDED.max_x,
			max_y = EXCLUDED.max_y,
			max_z = EXCLUDED.max_z,
			children = EXCLUDED.children,
			include_children = EXCLUDED.include_children,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, query,
		row.id, row.kind, row.shape,
		row.center.X, row.center.Y, row.center.Z, row.radius,
		row.min.X, row.min.Y, row.min.Z, row.max.X, row.max.Y, row.max.Z,
		row.children, row.includeChildren,
	)
	if err != nil {
		return fmt.Errorf("saving volume %s: %w", row.id, err)
	}
	return nil
}

// Delete removes the volume with the given id.
func (s *VolumeStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM exclusion_volumes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting volume %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting volume %s: %w", id, ErrVolumeNotFound)
	}
	return nil
}

// Get loads the volume with the given id.
func (s *VolumeStore) Get(ctx context.Context, id uuid.UUID) (navgrid.ExclusionVolume, error) {
	query := `SELECT ` + volumeColumns + ` FROM exclusion_volumes WHERE id = $1`

	v, err := scanVolume(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("loading volume %s: %w", id, ErrVolumeNotFound)
		}
		return nil, fmt.Errorf("loading volume %s: %w", id, err)
	}
	return v, nil
}

// List loads every stored volume ordered by id.
func (s *VolumeStore) List(ctx context.Context) ([]navgrid.ExclusionVolume, error) {
	query := `SELECT ` + volumeColumns + ` FROM exclusion_volumes ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing volumes: %w", err)
	}
	defer rows.Close()

	var volumes []navgrid.ExclusionVolume
	for rows.Next() {
		v, err := scanVolume(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning volume row: %w", err)
		}
		volumes = append(volumes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating volume rows: %w", err)
	}
	return volumes, nil
}

// LoadInto registers every stored volume in reg and returns how many were
// registered.
func (s *VolumeStore) LoadInto(ctx context.Context, reg *navgrid.Registry) (int, error) {
	volumes, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, v := range volumes {
		reg.Register(v)
	}
	return len(volumes), nil
}
