package domain

// SnapshotMetadata describes one link-discovery run.
type SnapshotMetadata struct {
	RunID          string `json:"run_id,omitempty"`
	ScrapeDate     string `json:"scrape_date"`
	TotalLinks     int    `json:"total_links"`
	PagesScraped   int    `json:"pages_scraped"`
	RecordsPerPage int    `json:"records_per_page"`
	BaseURL        string `json:"base_url"`
	Filters        string `json:"filters"`
}

// LinkSnapshot is the JSON document the link-discovery crawler checkpoints
// and the scrape command consumes. Links are deduplicated and sorted; the
// scrape command only requires the `links` array, so hand-written input
// files without metadata load fine too.
type LinkSnapshot struct {
	Metadata SnapshotMetadata `json:"metadata"`
	Links    []string         `json:"links"`
}
