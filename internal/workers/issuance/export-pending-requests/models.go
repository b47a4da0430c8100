package exportpendingrequests

type Input struct {
	IssuerAccount string `json:"issuerAccount"`
}

type Output struct {
	CSV          string `json:"csv"`
	PendingCount int    `json:"pendingCount"`
}
