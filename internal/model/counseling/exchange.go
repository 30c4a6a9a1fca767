package counseling

// VoiceRequest is the body of POST /api/counseling/voice.
type VoiceRequest struct {
	UserAudioBase64 string `json:"user_audio_base64"`
	SessionID       string `json:"session_id,omitempty"`
}

// VoiceResponse is the raw reply of POST /api/counseling/voice.
type VoiceResponse struct {
	AssistantAudioBase64 string `json:"assistant_audio_base64"`
	SessionID            string `json:"session_id,omitempty"`
	IsComplete           *bool  `json:"is_complete,omitempty"`
}

// ExchangeResult is a validated voice reply. It is consumed once by the controller.
type ExchangeResult struct {
	SessionID    string `json:"sessionId,omitempty"`
	AudioPayload string `json:"audioPayload"`
	IsComplete   bool   `json:"isComplete"`
}

// Status 初始咨询状态
type Status struct {
	HasInitialCounseling bool   `json:"hasInitialCounseling"`
	CounselingDate       string `json:"counselingDate,omitempty"`
	CounselingID         string `json:"counselingId,omitempty"`
}
