package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/metric"
	"github.com/c360/flowcanvas/pkg/cache"
	"github.com/c360/flowcanvas/pkg/retry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CatalogueOption configures a Catalogue.
type CatalogueOption func(*Catalogue)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CatalogueOption {
	return func(c *Catalogue) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(registry *metric.MetricsRegistry) CatalogueOption {
	return func(c *Catalogue) {
		c.registry = registry
	}
}

// WithRetry overrides the retry policy for source fetches.
func WithRetry(cfg retry.Config) CatalogueOption {
	return func(c *Catalogue) {
		c.retryCfg = cfg
	}
}

// Catalogue is the process-wide instruction cache. It is filled by the first
// Load, read-only afterwards, and replaced wholesale only by Refresh.
type Catalogue struct {
	source   Source
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	retryCfg retry.Config
	metrics  *catalogueMetrics

	group singleflight.Group

	mu         sync.RWMutex
	loaded     bool
	items      cache.Cache[Instruction]
	order      []string
	categories []Category
}

// New creates a Catalogue over source. Nothing is fetched until Load.
func New(source Source, opts ...CatalogueOption) (*Catalogue, error) {
	if source == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Catalogue", "New", "source check")
	}
	c := &Catalogue{
		source:   source,
		logger:   slog.Default(),
		retryCfg: retry.Quick(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryCfg.Retryable == nil {
		c.retryCfg.Retryable = errors.IsTransient
	}

	var cacheOpts []cache.Option[Instruction]
	if c.registry != nil {
		m, err := newCatalogueMetrics(c.registry)
		if err != nil {
			return nil, errors.Wrap(err, "Catalogue", "New", "metrics registration")
		}
		c.metrics = m
		cacheOpts = append(cacheOpts, cache.WithMetrics[Instruction](c.registry, "catalogue"))
	}
	items, err := cache.NewSimple[Instruction](cacheOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Catalogue", "New", "cache creation")
	}
	c.items = items
	return c, nil
}

// Load fetches the catalogue if it has not been fetched yet. Concurrent
// callers share a single fetch.
func (c *Catalogue) Load(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}
	return c.fetch(ctx)
}

// Refresh refetches unconditionally. On failure the previous contents stay.
func (c *Catalogue) Refresh(ctx context.Context) error {
	return c.fetch(ctx)
}

// Invalidate drops the cached contents; the next Load fetches again.
func (c *Catalogue) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.items.Clear()
	c.order = nil
	c.categories = nil
	c.loaded = false
	c.logger.Debug("Catalogue invalidated")
}

// Loaded reports whether the catalogue holds fetched contents.
func (c *Catalogue) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Catalogue) fetch(ctx context.Context) error {
	_, err, _ := c.group.Do("fetch", func() (any, error) {
		raw, err := retry.DoWithResult(ctx, c.retryCfg, func() ([]Instruction, error) {
			return c.source.List(ctx)
		})
		if err != nil {
			c.metrics.recordFetch("error", 0)
			c.logger.Warn("Catalogue fetch failed", "error", err)
			return nil, errors.Wrap(err, "Catalogue", "Load", "instruction fetch")
		}
		c.install(c.normalize(raw))
		return nil, nil
	})
	return err
}

// normalize validates definitions and canonicalises parameter types.
// Invalid or duplicate definitions are skipped, never fatal.
func (c *Catalogue) normalize(raw []Instruction) []Instruction {
	seen := make(map[string]bool, len(raw))
	out := make([]Instruction, 0, len(raw))
	for _, inst := range raw {
		if err := validate.Struct(inst); err != nil {
			c.logger.Warn("Skipping invalid instruction definition", "instruction_id", inst.ID, "error", err)
			c.metrics.recordSkipped()
			continue
		}
		if seen[inst.ID] {
			c.logger.Warn("Skipping duplicate instruction definition", "instruction_id", inst.ID)
			c.metrics.recordSkipped()
			continue
		}
		seen[inst.ID] = true

		inst = inst.clone()
		for i := range inst.Params {
			p := &inst.Params[i]
			t, ok := ParseParamType(string(p.Type))
			if !ok {
				c.logger.Warn("Unknown parameter type, treating as string",
					"instruction_id", inst.ID, "param", p.Name, "type", p.Type)
			}
			p.Type = t
			if v := p.Validation; v != nil && v.Min != nil && v.Max != nil && *v.Min > *v.Max {
				c.logger.Warn("Parameter min exceeds max, dropping range",
					"instruction_id", inst.ID, "param", p.Name)
				v.Min, v.Max = nil, nil
			}
		}
		out = append(out, inst)
	}
	return out
}

func (c *Catalogue) install(items []Instruction) {
	sorted := append([]Instruction(nil), items...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].SortOrder < sorted[b].SortOrder })

	var categories []Category
	index := make(map[string]int)
	order := make([]string, 0, len(sorted))
	for _, inst := range sorted {
		order = append(order, inst.ID)
		if !inst.IsActive() {
			continue
		}
		i, ok := index[inst.Category]
		if !ok {
			name := inst.CategoryName
			if name == "" {
				name = inst.Category
			}
			i = len(categories)
			index[inst.Category] = i
			categories = append(categories, Category{ID: inst.Category, Name: name, SortOrder: i})
		}
		categories[i].Items = append(categories[i].Items, inst.clone())
	}

	c.mu.Lock()
	_ = c.items.Clear()
	for _, inst := range sorted {
		if _, err := c.items.Set(inst.ID, inst); err != nil {
			c.logger.Warn("Failed to cache instruction", "instruction_id", inst.ID, "error", err)
		}
	}
	c.order = order
	c.categories = categories
	c.loaded = true
	c.mu.Unlock()

	c.metrics.recordFetch("success", len(order))
	c.logger.Info("Catalogue loaded", "instructions", len(order), "categories", len(categories))
}

// Lookup returns the instruction with id from the cache without fetching.
// Inactive instructions are still found so existing nodes keep resolving.
func (c *Catalogue) Lookup(id string) (Instruction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.items.Get(id)
	if !ok {
		return Instruction{}, false
	}
	return inst.clone(), true
}

// Has reports whether id is a known instruction.
func (c *Catalogue) Has(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// Get loads the catalogue if needed and returns the instruction.
func (c *Catalogue) Get(ctx context.Context, id string) (Instruction, error) {
	if err := c.Load(ctx); err != nil {
		return Instruction{}, err
	}
	inst, ok := c.Lookup(id)
	if !ok {
		return Instruction{}, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrNoInstruction, id),
			"Catalogue", "Get", "instruction lookup")
	}
	return inst, nil
}

// List returns active instructions in sort order.
func (c *Catalogue) List(ctx context.Context) ([]Instruction, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Instruction, 0, len(c.order))
	for _, id := range c.order {
		if inst, ok := c.items.Get(id); ok && inst.IsActive() {
			out = append(out, inst.clone())
		}
	}
	return out, nil
}

// Categories returns active instructions grouped by category, in the order
// each category first appears.
func (c *Catalogue) Categories(ctx context.Context) ([]Category, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		cat.Items = cloneAll(cat.Items)
		out[i] = cat
	}
	return out, nil
}

// Stats exposes cache statistics.
func (c *Catalogue) Stats() cache.StatsSummary {
	return c.items.Stats().Summary()
}

func (i Instruction) clone() Instruction {
	out := i
	if i.Active != nil {
		active := *i.Active
		out.Active = &active
	}
	out.Params = make([]ParamSpec, len(i.Params))
	for n, p := range i.Params {
		if p.Validation != nil {
			v := *p.Validation
			if v.Min != nil {
				minV := *v.Min
				v.Min = &minV
			}
			if v.Max != nil {
				maxV := *v.Max
				v.Max = &maxV
			}
			p.Validation = &v
		}
		p.Options = append([]Option(nil), p.Options...)
		out.Params[n] = p
	}
	return out
}

func cloneAll(items []Instruction) []Instruction {
	out := make([]Instruction, len(items))
	for i, inst := range items {
		out[i] = inst.clone()
	}
	return out
}
