package ir

const (
	// EventVersion is the version of the event record layout.
	EventVersion = "1"

	// ToolVersion is the streamscope release version.
	ToolVersion = "0.1.0"
)
