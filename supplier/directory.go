package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	// ErrNotFound signals the supplier exists in none of the source tables.
	ErrNotFound = errors.New("supplier: not found")
	// ErrFreePlanNotUpdated signals the toggle reached no source table.
	ErrFreePlanNotUpdated = errors.New("supplier: free plan not updated in any source table")
)

// loadLimit bounds the per-table directory read. The admin screen filters the
// whole pool in memory, so the read is a full scan, not a page.
const loadLimit = 2500

// DefaultSourceTables are the storage locations a profile may live in, in
// precedence order. Missing tables are tolerated at read time.
var DefaultSourceTables = []string{"suppliers", "usuarios", "users"}

var validTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Directory loads and caches the full supplier pool. The cache is
// session-local: populated on first use, reread only on explicit refresh.
// Filtering never mutates it.
type Directory struct {
	pool   *pgxpool.Pool
	tables []string

	mu     sync.RWMutex
	cache  []Supplier
	loaded bool
}

// NewDirectory wires a directory over the given profile source tables.
// Table names outside the lower_snake identifier alphabet are rejected since
// they are interpolated into queries.
func NewDirectory(pool *pgxpool.Pool, tables []string) (*Directory, error) {
	if len(tables) == 0 {
		tables = DefaultSourceTables
	}
	for _, t := range tables {
		if !validTableName.MatchString(t) {
			return nil, fmt.Errorf("supplier: invalid source table name %q", t)
		}
	}
	return &Directory{pool: pool, tables: tables}, nil
}

// LoadAll returns the normalized, name-sorted supplier pool. The first call
// fans out one read per source table and merges by id (earlier tables win);
// later calls serve the cache unless force is set.
func (d *Directory) LoadAll(ctx context.Context, force bool) ([]Supplier, error) {
	d.mu.RLock()
	if d.loaded && !force {
		out := snapshot(d.cache)
		d.mu.RUnlock()
		return out, nil
	}
	d.mu.RUnlock()

	perTable := make([][]Supplier, len(d.tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range d.tables {
		g.Go(func() error {
			rows, err := d.readTable(gctx, table)
			if err != nil {
				// A missing or malformed legacy table must not take the
				// directory down; the remaining sources still serve.
				log.Printf("supplier: skipping source table %s: %v", table, err)
				return nil
			}
			perTable[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("supplier: load directory: %w", err)
	}

	byID := make(map[string]struct{})
	var merged []Supplier
	for _, rows := range perTable {
		for _, s := range rows {
			if s.ID == "" {
				continue
			}
			if _, dup := byID[s.ID]; dup {
				continue
			}
			byID[s.ID] = struct{}{}
			merged = append(merged, s)
		}
	}

	SortByName(merged)

	d.mu.Lock()
	d.cache = merged
	d.loaded = true
	d.mu.Unlock()

	return snapshot(merged), nil
}

func (d *Directory) readTable(ctx context.Context, table string) ([]Supplier, error) {
	query := fmt.Sprintf(
		`SELECT id::text, profile FROM %s LIMIT %d`,
		pgx.Identifier{table}.Sanitize(), loadLimit,
	)
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var (
			id      string
			profile []byte
		)
		if err := rows.Scan(&id, &profile); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		raw := map[string]any{}
		if len(profile) > 0 {
			if err := json.Unmarshal(profile, &raw); err != nil {
				log.Printf("supplier: bad profile document %s.%s: %v", table, id, err)
				continue
			}
		}
		out = append(out, Normalize(id, raw))
	}
	return out, rows.Err()
}

// Get resolves one supplier, preferring the cache and falling back to a
// per-table lookup for profiles not yet loaded.
func (d *Directory) Get(ctx context.Context, id string) (Supplier, error) {
	d.mu.RLock()
	for _, s := range d.cache {
		if s.ID == id {
			d.mu.RUnlock()
			return s, nil
		}
	}
	d.mu.RUnlock()

	for _, table := range d.tables {
		query := fmt.Sprintf(
			`SELECT profile FROM %s WHERE id::text = $1`,
			pgx.Identifier{table}.Sanitize(),
		)
		var profile []byte
		err := d.pool.QueryRow(ctx, query, id).Scan(&profile)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				log.Printf("supplier: lookup %s in %s: %v", id, table, err)
			}
			continue
		}
		raw := map[string]any{}
		if len(profile) > 0 {
			if err := json.Unmarshal(profile, &raw); err != nil {
				return Supplier{}, fmt.Errorf("supplier: decode profile %s: %w", id, err)
			}
		}
		return Normalize(id, raw), nil
	}
	return Supplier{}, ErrNotFound
}

// IsFreeDemand reports whether the supplier currently receives demands free.
func (d *Directory) IsFreeDemand(ctx context.Context, id string) (bool, error) {
	s, err := d.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.IsFreeDemand(), nil
}

// ToggleFreePlan flips every known free-plan flag on the supplier profile to
// the opposite of currentlyFree, attempting the update against each source
// table and succeeding if at least one accepted it. The sponsor flag is never
// touched here.
func (d *Directory) ToggleFreePlan(ctx context.Context, id string, currentlyFree bool) error {
	next := !currentlyFree
	updated := false
	for _, table := range d.tables {
		query := fmt.Sprintf(`
			UPDATE %s
			SET profile = profile || jsonb_build_object(
				'recebeGratisDemandas', $2::bool,
				'freeDemandAccess',     $2::bool,
				'planoDemandasGratis',  $2::bool,
				'demandasGratis',       $2::bool
			)
			WHERE id::text = $1
		`, pgx.Identifier{table}.Sanitize())
		tag, err := d.pool.Exec(ctx, query, id, next)
		if err != nil {
			log.Printf("supplier: toggle free plan on %s: %v", table, err)
			continue
		}
		if tag.RowsAffected() > 0 {
			updated = true
		}
	}
	if !updated {
		return ErrFreePlanNotUpdated
	}

	d.mu.Lock()
	for i := range d.cache {
		if d.cache[i].ID == id {
			d.cache[i].FreePlan = next
			break
		}
	}
	d.mu.Unlock()
	return nil
}

// Search applies the filter pipeline to the (possibly refreshed) pool.
func (d *Directory) Search(ctx context.Context, f Filters, refresh bool) ([]Supplier, error) {
	pool, err := d.LoadAll(ctx, refresh)
	if err != nil {
		return nil, err
	}
	return Apply(pool, f), nil
}

func snapshot(in []Supplier) []Supplier {
	out := make([]Supplier, len(in))
	copy(out, in)
	return out
}

// SortByName orders suppliers by display name with pt-BR collation.
func SortByName(list []Supplier) {
	coll := collate.New(language.BrazilianPortuguese)
	sort.SliceStable(list, func(i, j int) bool {
		return coll.CompareString(list[i].Name, list[j].Name) < 0
	})
}
