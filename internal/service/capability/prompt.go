package capability

const (
	promptMultimodal = "You are an AI assistant with multimodal capabilities. You will be provided with images or audio to help answer the user's questions. Provide detailed and accurate responses based on the input data."
	promptVision     = "You are an AI assistant with image understanding capabilities. You will be provided with images to help answer the user's questions. Provide detailed and accurate responses based on the input data."
	promptAudio      = "You are an AI assistant with audio understanding capabilities. You will be provided with audio to help answer the user's questions. Provide detailed and accurate responses based on the input data."
	promptPlain      = "You are a helpful AI assistant."
)

// SystemPrompt выбирает системный промпт по возможностям модели.
// Приоритет: зрение+слух > зрение > слух > обычный ассистент.
func SystemPrompt(r Record) string {
	switch {
	case r.Vision && r.Audio:
		return promptMultimodal
	case r.Vision:
		return promptVision
	case r.Audio:
		return promptAudio
	default:
		return promptPlain
	}
}
