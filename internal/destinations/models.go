package destinations

// Destination is a contactable representative users get routed to.
//
// Contacts are loaded eagerly wherever the IVR needs a destination: the
// bridge step must find the phone contact without another round-trip.
type Destination struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Country string `json:"country" db:"country"`

	// Group is the parliamentary group id, used to pick the group name
	// audio clip in the alternative-destination prompt.
	Group string `json:"group,omitempty" db:"group_id"`

	Contacts []Contact `json:"contacts,omitempty"`
}

type Contact struct {
	ID            int64  `json:"id" db:"id"`
	DestinationID string `json:"destination_id" db:"destination_id"`

	// Type is "phone", "email", "fax", ...
	Type  string `json:"type" db:"type"`
	Value string `json:"value" db:"value"`
}

// PhoneContact returns the first phone contact, if any.
func (d Destination) PhoneContact() (string, bool) {
	for _, c := range d.Contacts {
		if c.Type == "phone" && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}
