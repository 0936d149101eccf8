package model

import "time"

// LoadSample is one switch load report received by the controller.
type LoadSample struct {
	Timestamp time.Time
	SwitchID  string
	Load      float64
	Packets   int
	Sender    string
}
