/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements the measurement catalog source, the menu/recipe/material
  sources, and the allocation store on one SQLite database. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  measure.Source:        Measurement and custom-range catalog
  demand.MenuSource:     Functions and selections of an order
  demand.RecipeSource:   Per-serving recipe lines
  demand.MaterialSource: Raw-material metadata
  allocation.Store:      Allocation rows and agency commitments

OPTIMISTIC LOCKING:
  Allocation writes are an explicit compare-and-swap:
    UPDATE ... WHERE id = ? AND version = ?
  Zero rows affected means another writer won the race and the call fails
  with StaleAllocationError. No ORM dirty-checking is involved.

DECIMALS:
  Quantities are stored as TEXT and parsed with shopspring/decimal, so no
  precision is lost to REAL columns.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/catering.db")   // ":memory:" for tests
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - allocation/store.go: Contract and locking semantics
  - store/memory: In-memory implementation for unit tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/catering-engine/allocation"
	"github.com/warp/catering-engine/demand"
	"github.com/warp/catering-engine/measure"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Measurement catalog (owned by the CRUD layer; read-through here)
	CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		is_base BOOLEAN NOT NULL DEFAULT FALSE,
		base_unit_id INTEGER NOT NULL,
		to_base TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS custom_ranges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		measurement_id INTEGER NOT NULL REFERENCES measurements(id),
		lower_bound TEXT NOT NULL,
		upper_bound TEXT NOT NULL DEFAULT '0',
		pack_size TEXT NOT NULL,
		rate TEXT NOT NULL DEFAULT '0',
		supplier_rate BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_custom_ranges_measurement
		ON custom_ranges(measurement_id);

	CREATE TABLE IF NOT EXISTS raw_materials (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category_id INTEGER NOT NULL DEFAULT 0,
		default_measurement_id INTEGER NOT NULL,
		adjust_quantity BOOLEAN NOT NULL DEFAULT FALSE,
		supplier_rate BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Menu data (owned by menu preparation; read-through here)
	CREATE TABLE IF NOT EXISTS event_functions (
		order_id INTEGER NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		guest_count INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (order_id, id)
	);

	CREATE TABLE IF NOT EXISTS menu_selections (
		order_id INTEGER NOT NULL,
		function_id INTEGER NOT NULL,
		menu_item_id INTEGER NOT NULL,
		from_package BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (order_id, function_id, menu_item_id)
	);

	CREATE TABLE IF NOT EXISTS recipe_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		menu_item_id INTEGER NOT NULL,
		raw_material_id INTEGER NOT NULL REFERENCES raw_materials(id),
		measurement_id INTEGER NOT NULL REFERENCES measurements(id),
		quantity TEXT NOT NULL,
		fixed BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_recipe_lines_menu_item
		ON recipe_lines(menu_item_id);

	-- Allocation rows (owned by this engine)
	CREATE TABLE IF NOT EXISTS raw_material_allocations (
		id TEXT PRIMARY KEY,
		order_id INTEGER NOT NULL,
		function_id INTEGER NOT NULL DEFAULT 0,
		raw_material_id INTEGER NOT NULL,
		measurement_id INTEGER NOT NULL,
		required TEXT NOT NULL,
		adjusted TEXT NOT NULL,
		adjusted_unit_id INTEGER NOT NULL,
		extra TEXT NOT NULL,
		extra_unit_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		orphaned BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_allocations_key
		ON raw_material_allocations(order_id, function_id, raw_material_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_order
		ON raw_material_allocations(order_id);

	CREATE TABLE IF NOT EXISTS agency_allocations (
		id TEXT PRIMARY KEY,
		allocation_id TEXT NOT NULL
			REFERENCES raw_material_allocations(id) ON DELETE CASCADE,
		agency_id INTEGER NOT NULL,
		quantity TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agency_allocations_allocation
		ON agency_allocations(allocation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG UPSERTS - Owned by the CRUD layer in production
// =============================================================================

func (s *Store) SaveMeasurement(ctx context.Context, m measure.Measurement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO measurements (id, name, symbol, is_base, base_unit_id, to_base)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			is_base = excluded.is_base,
			base_unit_id = excluded.base_unit_id,
			to_base = excluded.to_base
	`, m.ID, m.Name, m.Symbol, m.IsBase, m.BaseUnitID, m.ToBase.String())
	return err
}

func (s *Store) SaveCustomRange(ctx context.Context, r measure.CustomRange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_ranges (measurement_id, lower_bound, upper_bound, pack_size, rate, supplier_rate)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.MeasurementID, r.Lower.String(), r.Upper.String(), r.PackSize.String(), r.Rate.String(), r.SupplierRate)
	return err
}

func (s *Store) SaveRawMaterial(ctx context.Context, m demand.RawMaterial) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_materials (id, name, category_id, default_measurement_id, adjust_quantity, supplier_rate)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category_id = excluded.category_id,
			default_measurement_id = excluded.default_measurement_id,
			adjust_quantity = excluded.adjust_quantity,
			supplier_rate = excluded.supplier_rate
	`, m.ID, m.Name, m.CategoryID, m.DefaultMeasurementID, m.AdjustQuantity, m.SupplierRate)
	return err
}

func (s *Store) SaveFunction(ctx context.Context, orderID demand.OrderID, fn demand.EventFunction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_functions (order_id, id, name, guest_count, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(order_id, id) DO UPDATE SET
			name = excluded.name,
			guest_count = excluded.guest_count,
			active = excluded.active
	`, orderID, fn.ID, fn.Name, fn.GuestCount, fn.Active)
	return err
}

func (s *Store) SaveSelection(ctx context.Context, orderID demand.OrderID, functionID demand.FunctionID, sel demand.MenuSelection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO menu_selections (order_id, function_id, menu_item_id, from_package, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(order_id, function_id, menu_item_id) DO UPDATE SET
			from_package = excluded.from_package,
			active = excluded.active
	`, orderID, functionID, sel.MenuItemID, sel.FromPackage, sel.Active)
	return err
}

func (s *Store) DeleteSelection(ctx context.Context, orderID demand.OrderID, functionID demand.FunctionID, menuItemID demand.MenuItemID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM menu_selections WHERE order_id = ? AND function_id = ? AND menu_item_id = ?
	`, orderID, functionID, menuItemID)
	return err
}

func (s *Store) SaveRecipeLine(ctx context.Context, menuItemID demand.MenuItemID, line demand.RecipeLine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipe_lines (menu_item_id, raw_material_id, measurement_id, quantity, fixed)
		VALUES (?, ?, ?, ?, ?)
	`, menuItemID, line.RawMaterialID, line.MeasurementID, line.Quantity.String(), line.Fixed)
	return err
}

// =============================================================================
// MEASUREMENT CATALOG (measure.Source interface)
// =============================================================================

func (s *Store) LoadMeasurements(ctx context.Context) ([]measure.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, symbol, is_base, base_unit_id, to_base FROM measurements
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []measure.Measurement
	for rows.Next() {
		var m measure.Measurement
		var toBase string
		if err := rows.Scan(&m.ID, &m.Name, &m.Symbol, &m.IsBase, &m.BaseUnitID, &toBase); err != nil {
			return nil, err
		}
		if m.ToBase, err = decimal.NewFromString(toBase); err != nil {
			return nil, fmt.Errorf("measurement %d: bad to_base %q: %w", m.ID, toBase, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) LoadCustomRanges(ctx context.Context) ([]measure.CustomRange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT measurement_id, lower_bound, upper_bound, pack_size, rate, supplier_rate
		FROM custom_ranges ORDER BY measurement_id, lower_bound
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []measure.CustomRange
	for rows.Next() {
		var r measure.CustomRange
		var lower, upper, pack, rate string
		if err := rows.Scan(&r.MeasurementID, &lower, &upper, &pack, &rate, &r.SupplierRate); err != nil {
			return nil, err
		}
		if r.Lower, err = decimal.NewFromString(lower); err != nil {
			return nil, err
		}
		if r.Upper, err = decimal.NewFromString(upper); err != nil {
			return nil, err
		}
		if r.PackSize, err = decimal.NewFromString(pack); err != nil {
			return nil, err
		}
		if r.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// MENU DATA (demand.MenuSource / RecipeSource / MaterialSource interfaces)
// =============================================================================

func (s *Store) Functions(ctx context.Context, orderID demand.OrderID) ([]demand.EventFunction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, guest_count, active FROM event_functions
		WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []demand.EventFunction
	for rows.Next() {
		var fn demand.EventFunction
		if err := rows.Scan(&fn.ID, &fn.Name, &fn.GuestCount, &fn.Active); err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

func (s *Store) Selections(ctx context.Context, orderID demand.OrderID, functionID demand.FunctionID) ([]demand.MenuSelection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT menu_item_id, from_package, active FROM menu_selections
		WHERE order_id = ? AND function_id = ? ORDER BY menu_item_id
	`, orderID, functionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []demand.MenuSelection
	for rows.Next() {
		var sel demand.MenuSelection
		if err := rows.Scan(&sel.MenuItemID, &sel.FromPackage, &sel.Active); err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

func (s *Store) Recipe(ctx context.Context, menuItemID demand.MenuItemID) ([]demand.RecipeLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT raw_material_id, measurement_id, quantity, fixed FROM recipe_lines
		WHERE menu_item_id = ? ORDER BY id
	`, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []demand.RecipeLine
	for rows.Next() {
		var line demand.RecipeLine
		var qty string
		if err := rows.Scan(&line.RawMaterialID, &line.MeasurementID, &qty, &line.Fixed); err != nil {
			return nil, err
		}
		if line.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (s *Store) RawMaterial(ctx context.Context, id demand.RawMaterialID) (demand.RawMaterial, error) {
	var m demand.RawMaterial
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category_id, default_measurement_id, adjust_quantity, supplier_rate
		FROM raw_materials WHERE id = ?
	`, id).Scan(&m.ID, &m.Name, &m.CategoryID, &m.DefaultMeasurementID, &m.AdjustQuantity, &m.SupplierRate)
	if err == sql.ErrNoRows {
		return demand.RawMaterial{}, fmt.Errorf("raw material %d not found", id)
	}
	return m, err
}

// =============================================================================
// ALLOCATION ROWS (allocation.Store interface)
// =============================================================================

const rowColumns = `id, order_id, function_id, raw_material_id, measurement_id,
	required, adjusted, adjusted_unit_id, extra, extra_unit_id, source, orphaned, version`

func (s *Store) ListRows(ctx context.Context, orderID demand.OrderID) ([]allocation.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rowColumns+` FROM raw_material_allocations
		WHERE order_id = ? ORDER BY function_id, raw_material_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) GetRow(ctx context.Context, id allocation.RowID) (allocation.Row, error) {
	row, err := scanRow(s.db.QueryRowContext(ctx, `
		SELECT `+rowColumns+` FROM raw_material_allocations WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return allocation.Row{}, allocation.ErrAllocationNotFound
	}
	return row, err
}

func (s *Store) InsertRow(ctx context.Context, row allocation.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_material_allocations
		(id, order_id, function_id, raw_material_id, measurement_id,
		 required, adjusted, adjusted_unit_id, extra, extra_unit_id, source, orphaned, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.OrderID, row.FunctionID, row.RawMaterialID, row.MeasurementID,
		row.Required.String(), row.Adjusted.String(), row.AdjustedUnitID,
		row.Extra.String(), row.ExtraUnitID, row.Source, row.Orphaned, row.Version,
	)
	return err
}

// UpdateRow performs the compare-and-swap: the WHERE clause pins the
// version the caller read, and zero affected rows means the row moved.
func (s *Store) UpdateRow(ctx context.Context, row allocation.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE raw_material_allocations SET
			measurement_id = ?, required = ?, adjusted = ?, adjusted_unit_id = ?,
			extra = ?, extra_unit_id = ?, source = ?, orphaned = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		row.MeasurementID, row.Required.String(), row.Adjusted.String(), row.AdjustedUnitID,
		row.Extra.String(), row.ExtraUnitID, row.Source, row.Orphaned,
		row.ID, row.Version,
	)
	if err != nil {
		return err
	}
	return casOutcome(ctx, s.db, res, row.ID, row.Version)
}

func (s *Store) DeleteRow(ctx context.Context, id allocation.RowID, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM raw_material_allocations WHERE id = ? AND version = ?
	`, id, version)
	if err != nil {
		return err
	}
	return casOutcome(ctx, s.db, res, id, version)
}

func (s *Store) Agencies(ctx context.Context, allocationID allocation.RowID) ([]allocation.AgencyAllocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, allocation_id, agency_id, quantity FROM agency_allocations
		WHERE allocation_id = ? ORDER BY agency_id
	`, allocationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.AgencyAllocation
	for rows.Next() {
		var a allocation.AgencyAllocation
		var qty string
		if err := rows.Scan(&a.ID, &a.AllocationID, &a.AgencyID, &qty); err != nil {
			return nil, err
		}
		if a.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAgencies swaps the row's agency set atomically, guarded by the
// row version. The version bump and the swap share one transaction so a
// lost race leaves nothing half-replaced.
func (s *Store) ReplaceAgencies(ctx context.Context, allocationID allocation.RowID, version int64, entries []allocation.AgencyAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE raw_material_allocations SET version = version + 1
		WHERE id = ? AND version = ?
	`, allocationID, version)
	if err != nil {
		return err
	}
	if err := casOutcome(ctx, tx, res, allocationID, version); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM agency_allocations WHERE allocation_id = ?
	`, allocationID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agency_allocations (id, allocation_id, agency_id, quantity)
			VALUES (?, ?, ?, ?)
		`, e.ID, e.AllocationID, e.AgencyID, e.Quantity.String()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (allocation.Row, error) {
	var row allocation.Row
	var required, adjusted, extra string
	err := sc.Scan(
		&row.ID, &row.OrderID, &row.FunctionID, &row.RawMaterialID, &row.MeasurementID,
		&required, &adjusted, &row.AdjustedUnitID, &extra, &row.ExtraUnitID,
		&row.Source, &row.Orphaned, &row.Version,
	)
	if err != nil {
		return allocation.Row{}, err
	}
	if row.Required, err = decimal.NewFromString(required); err != nil {
		return allocation.Row{}, err
	}
	if row.Adjusted, err = decimal.NewFromString(adjusted); err != nil {
		return allocation.Row{}, err
	}
	if row.Extra, err = decimal.NewFromString(extra); err != nil {
		return allocation.Row{}, err
	}
	return row, nil
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// casOutcome distinguishes "lost the version race" from "row gone".
func casOutcome(ctx context.Context, db execer, res sql.Result, id allocation.RowID, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = db.QueryRowContext(ctx, `
		SELECT 1 FROM raw_material_allocations WHERE id = ?
	`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return allocation.ErrAllocationNotFound
	}
	if err != nil {
		return err
	}
	return &allocation.StaleAllocationError{AllocationID: id, ReadVersion: version}
}
