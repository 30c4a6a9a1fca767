//go:build !portaudio

package media

// OpenLiveGateway reports ErrLiveAudioDisabled in builds without the portaudio tag.
func OpenLiveGateway() (Gateway, func() error, error) {
	return nil, nil, ErrLiveAudioDisabled
}
