// pkg/registry/schema.go
package registry

// ActivityRegistry is the catalog of job types the worker manager serves,
// shared with process modelers as configs/activity-registry.json.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID          string                 `json:"id"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description"`
	Category    string                 `json:"category"`
	TaskType    string                 `json:"taskType"`
	Enabled     bool                   `json:"enabled"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	OutputVars  []string               `json:"outputVariables"`
	ErrorCodes  []string               `json:"errorCodes"`
	Timeout     string                 `json:"timeout"`
	MaxJobs     int                    `json:"maxJobsActive"`
	Tags        []string               `json:"tags,omitempty"`
}
