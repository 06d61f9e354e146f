package chat

import "strings"

// Role — автор сообщения в истории диалога.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind — тип части содержимого сообщения.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockImage
	BlockAudio
)

// Block — одна часть мультимодального сообщения. Заполнены только поля своего Kind.
type Block struct {
	Kind        BlockKind
	Text        string
	ImageURL    string // data URL
	AudioData   string // base64
	AudioFormat string
}

func TextBlock(text string) Block { return Block{Kind: BlockText, Text: text} }

func ImageBlock(dataURL string) Block { return Block{Kind: BlockImage, ImageURL: dataURL} }

func AudioBlock(data, format string) Block {
	return Block{Kind: BlockAudio, AudioData: data, AudioFormat: format}
}

// Message — сообщение истории. Если Blocks == nil, содержимое — Text.
type Message struct {
	Role   Role
	Text   string
	Blocks []Block
}

// Content возвращает текст сообщения для отображения; медиа заменяются метками.
func (m Message) Content() string {
	if m.Blocks == nil {
		return m.Text
	}
	parts := make([]string, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Kind {
		case BlockText:
			parts = append(parts, b.Text)
		case BlockImage:
			parts = append(parts, "[image]")
		case BlockAudio:
			parts = append(parts, "[audio]")
		}
	}
	return strings.Join(parts, "\n")
}

func (m Message) clone() Message {
	if m.Blocks != nil {
		m.Blocks = append([]Block(nil), m.Blocks...)
	}
	return m
}
