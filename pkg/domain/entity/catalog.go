package entity

import (
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultAlias is the alias carried by the sentinel entries returned when
// nothing usable is cached.
const DefaultAlias = "Default"

// TimestampLayout is the fixed-width UTC layout used for timestamps the
// engine assigns itself. Fixed width keeps it sortable as plain text.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is the shape shared by collections and datasets
type Entry struct {
	SourceURL    string `json:"source_url"`
	RawMarkup    string `json:"raw_markup,omitempty"`
	Alias        string `json:"alias"`
	Description  string `json:"description"`
	LastModified string `json:"last_modified"`
}

// Equal reports whether two entries denote the same catalog item.
// Identity is the alias; every other field is ignored.
func (e Entry) Equal(other Entry) bool {
	return e.Alias == other.Alias
}

// IsDefault reports whether the entry is a sentinel value
func (e Entry) IsDefault() bool {
	return e.Alias == DefaultAlias
}

// Dataset is a single downloadable dataset inside a collection
type Dataset struct {
	Entry
	Content string `json:"content"`
}

// Collection groups related datasets. The dataset list is shared between
// the crawler tasks that fill it and every reader, so it lives behind a
// pointer and its own lock.
type Collection struct {
	Entry
	datasets *DatasetList
}

// NewCollection creates a collection with an empty dataset list
func NewCollection(entry Entry) *Collection {
	return &Collection{Entry: entry, datasets: NewDatasetList()}
}

// Datasets returns the collection's live dataset list
func (c *Collection) Datasets() *DatasetList {
	if c.datasets == nil {
		c.datasets = NewDatasetList()
	}
	return c.datasets
}

// ReplaceContent overwrites the metadata of c with the metadata of other
// while keeping the live dataset list.
func (c *Collection) ReplaceContent(other *Collection) {
	c.Entry = other.Entry
}

// DefaultCollection returns the sentinel collection
func DefaultCollection() *Collection {
	return NewCollection(Entry{
		Alias:       DefaultAlias,
		Description: "Default collection",
	})
}

// DefaultDataset returns the sentinel dataset
func DefaultDataset() *Dataset {
	return &Dataset{Entry: Entry{
		Alias:       DefaultAlias,
		Description: "Default Dataset",
	}}
}

// DatasetList is an ordered, lock-guarded list of datasets
type DatasetList struct {
	mu    sync.Mutex
	items []*Dataset
}

// NewDatasetList creates an empty list
func NewDatasetList() *DatasetList {
	return &DatasetList{}
}

// Add appends d unless a dataset with the same alias is already present.
// It reports whether d was appended.
func (l *DatasetList) Add(d *Dataset) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.items {
		if existing.Equal(d.Entry) {
			return false
		}
	}
	l.items = append(l.items, d)
	return true
}

// Upsert appends d, or puts it in place of the dataset sharing its alias.
// It reports whether d was appended.
func (l *DatasetList) Upsert(d *Dataset) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.items {
		if existing.Equal(d.Entry) {
			l.items[i] = d
			return false
		}
	}
	l.items = append(l.items, d)
	return true
}

// Snapshot returns a copy of the current items
func (l *DatasetList) Snapshot() []*Dataset {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Dataset, len(l.items))
	copy(out, l.items)
	return out
}

// Find returns the dataset with the given alias
func (l *DatasetList) Find(alias string) (*Dataset, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, d := range l.items {
		if d.Alias == alias {
			return d, true
		}
	}
	return nil, false
}

// Len returns the number of datasets
func (l *DatasetList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Mutex exposes the list lock for callers that need to hold it across a
// read-modify-write, such as the reconciler.
func (l *DatasetList) Mutex() *sync.Mutex {
	return &l.mu
}

// ItemsLocked returns the backing slice. The caller must hold Mutex().
func (l *DatasetList) ItemsLocked() []*Dataset {
	return l.items
}

// CollectionList is the ordered, lock-guarded top level of the hierarchy
type CollectionList struct {
	mu    sync.Mutex
	items []*Collection
}

// NewCollectionList creates an empty list
func NewCollectionList() *CollectionList {
	return &CollectionList{}
}

// Add appends c unless a collection with the same alias is already present
func (l *CollectionList) Add(c *Collection) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.items {
		if existing.Equal(c.Entry) {
			return false
		}
	}
	l.items = append(l.items, c)
	return true
}

// Snapshot returns a copy of the current items
func (l *CollectionList) Snapshot() []*Collection {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Collection, len(l.items))
	copy(out, l.items)
	return out
}

// Find returns the collection with the given alias
func (l *CollectionList) Find(alias string) (*Collection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.items {
		if c.Alias == alias {
			return c, true
		}
	}
	return nil, false
}

// Refresh copies the metadata of c onto the collection sharing its alias,
// under the list lock, and returns that collection.
func (l *CollectionList) Refresh(c *Collection) (*Collection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.items {
		if existing.Equal(c.Entry) {
			existing.ReplaceContent(c)
			return existing, true
		}
	}
	return nil, false
}

// Len returns the number of collections
func (l *CollectionList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Mutex exposes the list lock, see DatasetList.Mutex
func (l *CollectionList) Mutex() *sync.Mutex {
	return &l.mu
}

// ItemsLocked returns the backing slice. The caller must hold Mutex().
func (l *CollectionList) ItemsLocked() []*Collection {
	return l.items
}

// Reset drops every collection
func (l *CollectionList) Reset() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// PathSegments splits the URL path on "/" after the leading slash.
// Trailing empty segments are dropped, so "/data-sets/pfc/" has two
// segments, the same as "/data-sets/pfc".
func PathSegments(u *url.URL) []string {
	segments := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	for len(segments) > 1 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	return segments
}

// CollectionAlias derives a collection alias from its URL: the second
// path segment, e.g. "pfc" for /data-sets/pfc.
func CollectionAlias(u *url.URL) string {
	segments := PathSegments(u)
	if len(segments) < 2 {
		return ""
	}
	return segments[1]
}

// DatasetAlias derives a dataset alias from its URL: the last path segment
func DatasetAlias(u *url.URL) string {
	segments := PathSegments(u)
	return segments[len(segments)-1]
}

// DatasetDir maps a dataset URL onto the cache tree: every path segment
// after the first, joined under root.
func DatasetDir(root string, u *url.URL) string {
	segments := PathSegments(u)
	if len(segments) > 0 {
		segments = segments[1:]
	}
	return filepath.Join(append([]string{root}, segments...)...)
}

// Now returns the current time in TimestampLayout
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}
