// Package processing turns validated generation requests into chat messages
// and post-processes model output into plan steps.
package processing

// Roles used in chat messages. The handler only ever sends system and user turns.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Mode tags a generation request.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeFix      Mode = "fix"
	ModeUpdate   Mode = "update"
)

// Message represents a single message sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a validated generation request. It is one of GenerateRequest,
// FixRequest or UpdateRequest; all string fields are already trimmed.
type Request interface {
	Mode() Mode
}

// GenerateRequest asks for a new script from a natural-language prompt.
type GenerateRequest struct {
	Prompt string
}

// FixRequest asks for an existing script to be repaired.
type FixRequest struct {
	ExistingLua string
	Issue       string
}

// UpdateRequest asks for an existing script (possibly empty) to be changed.
type UpdateRequest struct {
	Prompt      string
	ExistingLua string
}

func (GenerateRequest) Mode() Mode { return ModeGenerate }
func (FixRequest) Mode() Mode      { return ModeFix }
func (UpdateRequest) Mode() Mode   { return ModeUpdate }

// Response is the success payload returned to clients.
type Response struct {
	Lua   string   `json:"lua"`
	Model string   `json:"model"`
	Steps []string `json:"steps"`
}
