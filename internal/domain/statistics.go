package domain

// Statistics is the aggregate read model over both tables. The count maps
// are keyed by raw status strings so callers can render values this
// version does not know about.
type Statistics struct {
	TotalLots    int
	TotalURLs    int
	LotsByParse  map[string]int
	URLsByStatus map[string]int
}
