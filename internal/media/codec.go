package media

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeAudio turns recorded bytes into the base64 text the counseling API expects.
func EncodeAudio(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeAudio reverses EncodeAudio. A leading data URL header ("data:audio/wav;base64,")
// is tolerated because browsers produce it when reading blobs.
func DecodeAudio(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			payload = payload[idx+1:]
		}
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedAudio)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}
	return data, nil
}
