package turn

import "encoding/json"

// State is the phase of the conversational turn.
type State int

const (
	Idle State = iota
	Recording
	Transcribing
	Retrieving
	Generating
	Speaking
	Cancelled
	Failed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Retrieving:
		return "retrieving"
	case Generating:
		return "generating"
	case Speaking:
		return "speaking"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a turn occupies the controller in this state.
func (s State) Active() bool {
	return s != Idle
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler. Unknown names decode as Idle.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "recording":
		*s = Recording
	case "transcribing":
		*s = Transcribing
	case "retrieving":
		*s = Retrieving
	case "generating":
		*s = Generating
	case "speaking":
		*s = Speaking
	case "cancelled":
		*s = Cancelled
	case "failed":
		*s = Failed
	default:
		*s = Idle
	}
	return nil
}
