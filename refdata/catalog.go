package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrAttributeUnknown is returned when no attribute definition exists for the
// requested id.
var ErrAttributeUnknown = errors.New("refdata: unknown attribute")

// AttributeDef describes one extended-attribute type: its display code,
// whether an entity may carry several values, and the value cap when it may.
type AttributeDef struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	MultiValued bool   `json:"multi_valued"`
	MaxValues   int    `json:"max_values"`
}

// Catalog loads attribute definitions.
type Catalog interface {
	AttributeByID(ctx context.Context, id string) (AttributeDef, error)
}

// PGCatalog reads attribute definitions from the reference table.
type PGCatalog struct {
	pool *pgxpool.Pool
}

func NewPGCatalog(pool *pgxpool.Pool) *PGCatalog {
	return &PGCatalog{pool: pool}
}

func (c *PGCatalog) AttributeByID(ctx context.Context, id string) (AttributeDef, error) {
	const query = `
SELECT id, code, multi_valued, max_values
FROM attribute_defs
WHERE id = $1
`
	var def AttributeDef
	err := c.pool.QueryRow(ctx, query, id).Scan(&def.ID, &def.Code, &def.MultiValued, &def.MaxValues)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AttributeDef{}, ErrAttributeUnknown
		}
		return AttributeDef{}, fmt.Errorf("refdata: load attribute %s: %w", id, err)
	}
	return def, nil
}

// RedisCatalog caches definitions in Redis with a TTL, loading misses from
// the wrapped catalog. Unknown attributes are not cached; the reference table
// changes rarely and a negative entry would outlive a new definition.
type RedisCatalog struct {
	next Catalog
	rdb  *redis.Client
	ttl  time.Duration
}

func NewRedisCatalog(next Catalog, rdb *redis.Client, ttl time.Duration) *RedisCatalog {
	return &RedisCatalog{next: next, rdb: rdb, ttl: ttl}
}

func (c *RedisCatalog) AttributeByID(ctx context.Context, id string) (AttributeDef, error) {
	key := "refdata:attr:" + id

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var def AttributeDef
		if err := json.Unmarshal(raw, &def); err == nil {
			return def, nil
		}
		// fall through on a corrupt entry and reload
	} else if !errors.Is(err, redis.Nil) {
		return AttributeDef{}, fmt.Errorf("refdata: cache get %s: %w", id, err)
	}

	def, err := c.next.AttributeByID(ctx, id)
	if err != nil {
		return AttributeDef{}, err
	}

	encoded, err := json.Marshal(def)
	if err != nil {
		return AttributeDef{}, fmt.Errorf("refdata: encode attribute %s: %w", id, err)
	}
	if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return AttributeDef{}, fmt.Errorf("refdata: cache set %s: %w", id, err)
	}
	return def, nil
}

// MemoryCatalog is a request-scoped or test catalog backed by a plain map.
type MemoryCatalog struct {
	mu   sync.Mutex
	next Catalog
	defs map[string]AttributeDef
}

// NewMemoryCatalog creates a catalog preloaded with defs; next may be nil for
// a fixed test fixture.
func NewMemoryCatalog(next Catalog, defs ...AttributeDef) *MemoryCatalog {
	m := &MemoryCatalog{next: next, defs: make(map[string]AttributeDef, len(defs))}
	for _, def := range defs {
		m.defs[def.ID] = def
	}
	return m
}

func (c *MemoryCatalog) AttributeByID(ctx context.Context, id string) (AttributeDef, error) {
	c.mu.Lock()
	if def, ok := c.defs[id]; ok {
		c.mu.Unlock()
		return def, nil
	}
	c.mu.Unlock()

	if c.next == nil {
		return AttributeDef{}, ErrAttributeUnknown
	}

	def, err := c.next.AttributeByID(ctx, id)
	if err != nil {
		return AttributeDef{}, err
	}

	c.mu.Lock()
	c.defs[id] = def
	c.mu.Unlock()
	return def, nil
}
