package search

// submitResponse is returned by POST /services/search/jobs.
type submitResponse struct {
	SID string `json:"sid"`
}

type jobContent struct {
	SID           string  `json:"sid"`
	DispatchState string  `json:"dispatchState"`
	IsDone        bool    `json:"isDone"`
	IsFailed      bool    `json:"isFailed"`
	DoneProgress  float64 `json:"doneProgress"`
	EventCount    int     `json:"eventCount"`
	ResultCount   int     `json:"resultCount"`
}

type jobEntry struct {
	Name    string     `json:"name"`
	Content jobContent `json:"content"`
}

// statusResponse is returned by GET /services/search/jobs/{sid}.
type statusResponse struct {
	Entry []jobEntry `json:"entry"`
}

// eventsResponse is returned by GET /services/search/jobs/{sid}/events.
type eventsResponse struct {
	Preview    bool             `json:"preview"`
	InitOffset int              `json:"init_offset"`
	Results    []map[string]any `json:"results"`
}
