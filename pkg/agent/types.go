package agent

// Role is the author of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// DefaultSystemInstruction seeds every session
const DefaultSystemInstruction = `You are an intelligent assistant responsible for processing and generating documents. Please always return results in the following JSON format:
{
  "content": "generated content",
  "filename": "file name to save"
}
Content should be formatted Markdown text, and the filename should include appropriate extension (e.g. .md).`
