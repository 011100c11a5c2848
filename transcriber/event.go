package transcriber

import "encoding/json"

// Event is one transcription result. Interim events carry the current
// hypothesis; a final event carries the settled text of the utterance so far.
type Event struct {
	Text  string
	Final bool
}

type wireEvent struct {
	Text  *string `json:"text"`
	Final *bool   `json:"final"`
}

// DecodeEvent parses one inbound message. Both fields are required; anything
// else is reported as not ok and the caller discards it.
func DecodeEvent(data []byte) (Event, bool) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, false
	}
	if w.Text == nil || w.Final == nil {
		return Event{}, false
	}
	return Event{Text: *w.Text, Final: *w.Final}, true
}
