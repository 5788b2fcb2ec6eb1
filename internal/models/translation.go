package models

// TranslateRequest is the body of POST /api/translate
type TranslateRequest struct {
	Text           string `json:"text" validate:"required"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language" validate:"required"`
}

// DetectRequest is the body of POST /api/translate/detect
type DetectRequest struct {
	Text string `json:"text" validate:"required"`
}

// SpeechRequest is the body of POST /api/translate/tts
type SpeechRequest struct {
	Text  string  `json:"text" validate:"required"`
	Voice string  `json:"voice,omitempty" validate:"omitempty,voice"`
	Speed float64 `json:"speed,omitempty" validate:"omitempty,gte=0.25,lte=4"`
}
