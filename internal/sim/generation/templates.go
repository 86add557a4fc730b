package generation

import (
	"fmt"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
)

// TemplateCache instantiates room prototypes on first use and keeps them
// until a reload touches them.
type TemplateCache struct {
	cats  *catalogs.Catalogs
	rooms map[string]*dungeon.Template

	hits, misses int
}

func NewTemplateCache(cats *catalogs.Catalogs) *TemplateCache {
	return &TemplateCache{cats: cats, rooms: map[string]*dungeon.Template{}}
}

func (c *TemplateCache) Template(roomID string) (*dungeon.Template, error) {
	if t, ok := c.rooms[roomID]; ok {
		c.hits++
		return t, nil
	}
	def, ok := c.cats.Rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("unknown room %q", roomID)
	}
	t, err := dungeon.InstantiateTemplate(c.cats, def)
	if err != nil {
		return nil, err
	}
	c.misses++
	c.rooms[roomID] = t
	return t, nil
}

// For resolves rooms against cats. While cats are the cache's own catalogs
// it reads through the cache; catalogs replaced by a reload get a private
// map so queued jobs keep the rooms they were created with.
func (c *TemplateCache) For(cats *catalogs.Catalogs) dungeon.TemplateSource {
	return &pinnedTemplates{cache: c, cats: cats}
}

type pinnedTemplates struct {
	cache *TemplateCache
	cats  *catalogs.Catalogs
	rooms map[string]*dungeon.Template
}

func (p *pinnedTemplates) Template(roomID string) (*dungeon.Template, error) {
	if p.cats == p.cache.cats {
		return p.cache.Template(roomID)
	}
	if t, ok := p.rooms[roomID]; ok {
		return t, nil
	}
	def, ok := p.cats.Rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("unknown room %q", roomID)
	}
	t, err := dungeon.InstantiateTemplate(p.cats, def)
	if err != nil {
		return nil, err
	}
	if p.rooms == nil {
		p.rooms = map[string]*dungeon.Template{}
	}
	p.rooms[roomID] = t
	return t, nil
}

func (c *TemplateCache) Len() int { return len(c.rooms) }

// Stats returns cache hits and misses since creation.
func (c *TemplateCache) Stats() (hits, misses int) { return c.hits, c.misses }

// Invalidate swaps in the reloaded catalogs and drops the templates the
// reload touched. Tile or entity changes can shift what any template holds,
// so they drop everything.
func (c *TemplateCache) Invalidate(cats *catalogs.Catalogs, changes catalogs.Changes) int {
	c.cats = cats
	dropAll := false
	for _, list := range [][]catalogs.Ref{changes.Added, changes.Removed, changes.Modified} {
		for _, ref := range list {
			if ref.Kind == catalogs.KindTile || ref.Kind == catalogs.KindEntity || ref.Kind == catalogs.KindDecal {
				dropAll = true
			}
		}
	}
	if dropAll {
		n := len(c.rooms)
		c.rooms = map[string]*dungeon.Template{}
		return n
	}
	n := 0
	for id := range c.rooms {
		if changes.Touched(catalogs.Ref{Kind: catalogs.KindRoom, ID: id}) {
			delete(c.rooms, id)
			n++
		}
	}
	return n
}
