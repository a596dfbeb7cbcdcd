package entity

import "time"

// Metrics represents crawl metrics
type Metrics struct {
	RunID            string
	PagesFetched     int64
	FetchErrors      int64
	ExtractErrors    int64
	CollectionsFound int64
	DatasetsFound    int64
	NewDatasets      int64
	TasksSpawned     int64
	TasksDone        int64
	StartTime        time.Time
	LastUpdateTime   time.Time
	ActiveURLs       []string
}
