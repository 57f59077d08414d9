package report

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/paladinbio/paladin-plugins/internal/log"
)

const cleanupInterval = 30 * time.Minute

// Cache memoizes parsed report files per (file, filter) key. Pipelines
// frequently feed the same report to several plugins; parsing happens once.
type Cache struct {
	sam     *gocache.Cache
	uniprot *gocache.Cache
}

// NewCache creates an empty report cache.
func NewCache() *Cache {
	return &Cache{
		sam:     gocache.New(gocache.NoExpiration, cleanupInterval),
		uniprot: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// SamEntries returns the parsed SAM entries for (filename, quality),
// parsing on first use.
func (c *Cache) SamEntries(filename string, quality int) (map[SamKey]*SamEntry, error) {
	key := fmt.Sprintf("%s|%d", filename, quality)
	if cached, found := c.sam.Get(key); found {
		if entries, ok := cached.(map[SamKey]*SamEntry); ok {
			log.Debug(log.CatReport, "SAM cache hit", "key", key)
			return entries, nil
		}
	}

	entries, err := ParseSam(filename, quality)
	if err != nil {
		return nil, err
	}
	c.sam.Set(key, entries, gocache.NoExpiration)
	return entries, nil
}

// UniprotEntries returns the parsed UniProt report entries for
// (filename, quality, pattern), parsing on first use.
func (c *Cache) UniprotEntries(filename string, quality int, pattern string) (map[string]*UniprotEntry, error) {
	key := fmt.Sprintf("%s|%d|%s", filename, quality, pattern)
	if cached, found := c.uniprot.Get(key); found {
		if entries, ok := cached.(map[string]*UniprotEntry); ok {
			log.Debug(log.CatReport, "UniProt cache hit", "key", key)
			return entries, nil
		}
	}

	entries, err := ParseUniprot(filename, quality, pattern)
	if err != nil {
		return nil, err
	}
	c.uniprot.Set(key, entries, gocache.NoExpiration)
	return entries, nil
}
