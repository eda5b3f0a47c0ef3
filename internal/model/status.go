package model

// NextAlarm summarises the upcoming alarm for the home screen.
type NextAlarm struct {
	Alarm *Alarm `json:"alarm,omitempty"`
	ETA   string `json:"eta,omitempty"`
}

// Health reports collaborator reachability.
type Health struct {
	Status   string `json:"status"`
	Bark     string `json:"bark,omitempty"`
	Verifier string `json:"verifier,omitempty"`
}
