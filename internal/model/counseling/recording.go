package counseling

import "time"

// Recording is one encoded utterance waiting to be exchanged.
type Recording struct {
	ID        string    `json:"id"`
	Data      []byte    `json:"-"`
	MIMEType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}

// Empty reports whether the recording carries no audio.
func (r Recording) Empty() bool {
	return len(r.Data) == 0
}
