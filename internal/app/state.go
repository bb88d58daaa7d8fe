package app

// AppState represents the different views/modes of the watch dashboard.
type AppState int

const (
	Loading AppState = iota
	ShowDashboard
	ShowError
	Exiting
)
