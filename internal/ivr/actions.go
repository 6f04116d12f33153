package ivr

// Action is the declarative response to a provider webhook: it tells the
// provider what to do with the call next. Exactly one of IVR, Play,
// Connect or Hangup is set; Next points at the callback that handles the
// outcome of that step.
type Action struct {
	// IVR plays the referenced audio and collects one digit.
	IVR string `json:"ivr,omitempty"`
	// Play plays the referenced audio without collecting input.
	Play string `json:"play,omitempty"`
	// Connect bridges the call to the given phone number.
	Connect string `json:"connect,omitempty"`
	// Hangup terminates the call ("reject" drops without an announcement).
	Hangup string `json:"hangup,omitempty"`

	Next    string `json:"next,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
	Repeat  int    `json:"repeat,omitempty"`
}

func hangupAction() Action {
	return Action{Hangup: "reject"}
}
