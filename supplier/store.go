package supplier

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/search"
)

// Store implements Directory and Persistence on the SQLite schema
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates a supplier store
func NewStore(db *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: db, logger: logger}
}

const supplierColumns = `id, name, url, market_scale, active`

func scanSupplier(row interface{ Scan(...interface{}) error }) (*Supplier, error) {
	var s Supplier
	var scale string
	if err := row.Scan(&s.ID, &s.Name, &s.URL, &scale, &s.Active); err != nil {
		return nil, err
	}
	s.MarketScale = search.ParseMarketScale(scale)
	return &s, nil
}

// ActiveSuppliers returns active suppliers ordered by id
func (s *Store) ActiveSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.list(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE active = 1 ORDER BY id`)
}

// AllSuppliers returns every supplier ordered by id
func (s *Store) AllSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.list(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY id`)
}

func (s *Store) list(ctx context.Context, query string) ([]Supplier, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query suppliers")
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan supplier")
		}
		suppliers = append(suppliers, *sup)
	}
	return suppliers, errors.Wrap(rows.Err(), "failed to iterate suppliers")
}

// Supplier implements Directory
func (s *Store) Supplier(ctx context.Context, id int64) (*Supplier, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = ?`, id)
	sup, err := scanSupplier(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get supplier %d", id)
	}
	return sup, nil
}

// SystemDefaults implements Directory
func (s *Store) SystemDefaults(ctx context.Context) SystemDefaults {
	var (
		perSite            int
		priceMin, priceMax sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT results_per_site, price_min, price_max FROM system_settings WHERE id = 1`,
	).Scan(&perSite, &priceMin, &priceMax)
	if err != nil {
		s.logger.Warnw("System settings unreadable, using defaults",
			"results_per_site", DefaultResultsPerSite,
			"error", err)
		return SystemDefaults{ResultsPerSite: DefaultResultsPerSite}
	}

	d := SystemDefaults{ResultsPerSite: perSite}
	if d.ResultsPerSite <= 0 {
		d.ResultsPerSite = DefaultResultsPerSite
	}
	if priceMin.Valid {
		v := priceMin.Float64
		d.PriceMin = &v
	}
	if priceMax.Valid {
		v := priceMax.Float64
		d.PriceMax = &v
	}
	return d
}

// UpdateSystemDefaults overwrites the settings row
func (s *Store) UpdateSystemDefaults(ctx context.Context, d SystemDefaults) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (id, results_per_site, price_min, price_max, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			results_per_site = excluded.results_per_site,
			price_min = excluded.price_min,
			price_max = excluded.price_max,
			updated_at = CURRENT_TIMESTAMP`,
		d.ResultsPerSite, nullFloat(d.PriceMin), nullFloat(d.PriceMax))
	return errors.Wrap(err, "failed to update system settings")
}

// UpsertSupplier inserts a supplier or updates the one with the same URL,
// returning its id.
func (s *Store) UpsertSupplier(ctx context.Context, sup Supplier) (int64, error) {
	if strings.TrimSpace(sup.URL) == "" || strings.TrimSpace(sup.Name) == "" {
		return 0, errors.Wrap(errors.ErrInvalidRequest, "supplier needs a name and a url")
	}
	scale := sup.MarketScale
	if scale == "" {
		scale = search.MarketLocal
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, url, market_scale, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			market_scale = excluded.market_scale,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`,
		sup.Name, sup.URL, string(scale), sup.Active,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to upsert supplier %s", sup.URL)
	}
	return id, nil
}

// NameKey is the per-supplier uniqueness key of a product
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SaveCandidates implements Persistence. The whole batch is one transaction:
// any error fails the batch.
func (s *Store) SaveCandidates(ctx context.Context, candidates []search.Candidate, supplierID int64, actorID int64) (SaveResult, error) {
	var result SaveResult
	if len(candidates) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (
			supplier_id, name, name_key, price, description,
			product_url, image_url, market_scale, correlation_id, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(supplier_id, name_key) DO NOTHING`)
	if err != nil {
		return result, errors.Wrap(err, "failed to prepare product insert")
	}
	defer stmt.Close()

	for _, c := range candidates {
		key := NameKey(c.Name)
		if key == "" {
			result.Skipped++
			continue
		}

		res, err := stmt.ExecContext(ctx,
			supplierID, strings.TrimSpace(c.Name), key, c.Price, c.Description,
			c.ProductURL, c.ImageURL, string(c.MarketScale), nullString(c.CorrelationID), actorID)
		if err != nil {
			return SaveResult{}, errors.Wrapf(err, "failed to save product %q", c.Name)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return SaveResult{}, errors.Wrap(err, "failed to read rows affected")
		}
		if n == 0 {
			result.Skipped++
			continue
		}
		result.Saved++
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, errors.Wrap(err, "failed to commit products")
	}

	s.logger.Debugw("Saved candidates",
		"supplier_id", supplierID,
		"saved", result.Saved,
		"skipped", result.Skipped)
	return result, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ Directory   = (*Store)(nil)
	_ Persistence = (*Store)(nil)
)
