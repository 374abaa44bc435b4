package tui

type state int

const (
	statusState state = iota
	qualityState
	errorState
)
