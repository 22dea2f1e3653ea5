package model

// SystemNotification is the payload handed to the OS-level notifier when
// the application is not in the foreground.
type SystemNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Toast is an in-app alert shown while the application is in the
// foreground.
type Toast struct {
	// ID is unique per raised toast, not per detection.
	ID string `json:"id"`

	Title string `json:"title"`
	Body  string `json:"body"`

	// Threat is the detection the toast was raised for.
	Threat ThreatEvent `json:"threat"`
}
