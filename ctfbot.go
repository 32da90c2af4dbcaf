package ctfbot

// Build version & commit SHA.
var (
	Version string
	Commit  string
)

// DefaultMarkerEmoji is the reaction used to join or leave a CTF.
const DefaultMarkerEmoji = "🚩"
