package models

// Neighbor is a single ranked similarity hit.
type Neighbor struct {
	ID       RecordID `json:"id"`
	Row      int      `json:"row"`
	Distance float32  `json:"distance"`
}

// NeighborIDs returns the identities of ns in order.
func NeighborIDs(ns []Neighbor) []RecordID {
	ids := make([]RecordID, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	return ids
}

// SearchResult pairs a neighbor with its full record.
type SearchResult struct {
	Record   *Record `json:"record"`
	Distance float32 `json:"distance"`
	Rank     int     `json:"rank"`
}

// SearchResponse is the response for a text or similarity query.
type SearchResponse struct {
	Query     string          `json:"query,omitempty"`
	SourceID  RecordID        `json:"source_id,omitempty"`
	K         int             `json:"k"`
	Results   []*SearchResult `json:"results"`
	QueryTime int64           `json:"query_time_ms"`
}
