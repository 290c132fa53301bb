package dashscope

// The synthesis voice and language are fixed for the kana page.
const (
	Voice    = "Cherry"
	Language = "Japanese"
)

type Payload struct {
	Model string `json:"model"`
	Input Input  `json:"input"`
}

type Input struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	LanguageType string `json:"language_type"`
}

func NewPayload(model, text string) Payload {
	return Payload{
		Model: model,
		Input: Input{
			Text:         text,
			Voice:        Voice,
			LanguageType: Language,
		},
	}
}
