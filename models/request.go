package models

// StartRequest is the payload for POST /api/start/:tab.
type StartRequest struct {
	// Games is a newline-separated list of titles. Required.
	Games string `json:"games"`

	// Workers is the number of browser sessions to run in parallel.
	// Default: 3. Min: 1.
	Workers int `json:"workers,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *StartRequest) Defaults(defaultWorkers int) {
	if r.Workers == 0 {
		r.Workers = defaultWorkers
	}
	if r.Workers < 1 {
		r.Workers = 1
	}
}

// DeleteResultRequest is the payload for POST /api/delete-result/:tab.
type DeleteResultRequest struct {
	SearchName string `json:"search_name"`
}
