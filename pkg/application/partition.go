package application

import (
	"net/url"
	"sort"
	"strings"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
	mapset "github.com/deckarep/golang-set/v2"
)

const (
	collectionSegments = 2
	datasetSegments    = 3
)

// HarvestLinks keeps the absolute links containing filter, drops
// duplicates and returns them sorted.
func HarvestLinks(links []string, filter string) []*url.URL {
	seen := mapset.NewThreadUnsafeSet[string]()
	var urls []*url.URL
	for _, link := range links {
		if !strings.Contains(link, filter) {
			continue
		}
		u, err := url.Parse(link)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		canonicalize(u)
		if !seen.Add(u.String()) {
			continue
		}
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool {
		return urls[i].String() < urls[j].String()
	})
	return urls
}

// canonicalize drops trailing slashes so ".../pfc/" and ".../pfc" name the
// same page.
func canonicalize(u *url.URL) {
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	if u.Path == "" {
		u.Path = "/"
	}
}

// Partition splits URLs by path segment count into collection pages and
// dataset pages. Every other URL is dropped, as is any URL whose alias
// would come out empty.
func Partition(urls []*url.URL) (collections, datasets []*url.URL) {
	for _, u := range urls {
		segments := entity.PathSegments(u)
		if len(segments) < collectionSegments || segments[collectionSegments-1] == "" || segments[len(segments)-1] == "" {
			continue
		}
		switch len(segments) {
		case collectionSegments:
			collections = append(collections, u)
		case datasetSegments:
			datasets = append(datasets, u)
		}
	}
	return collections, datasets
}

// DatasetsOf selects the dataset URLs nested under a collection URL. A
// dataset belongs to the collection whose whole path it extends, so
// ".../hc" does not claim ".../hc-x/ds-1".
func DatasetsOf(collection *url.URL, datasets []*url.URL) []*url.URL {
	prefix := strings.TrimRight(collection.String(), "/") + "/"
	var out []*url.URL
	for _, d := range datasets {
		if strings.HasPrefix(d.String(), prefix) && len(entity.PathSegments(d)) == datasetSegments {
			out = append(out, d)
		}
	}
	return out
}
