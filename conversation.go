package voicechat

import "sync"

// User-visible fixed strings. The conversation never surfaces
// structured errors, only these.
const (
	InitFailedMessage       = "Failed to initialize connection. Please try again."
	ModelErrorMessage       = "AI encountered an error."
	VoiceMessagePlaceholder = "You: [voice message]"
	UserMessagePrefix       = "You: "
)

// Conversation is the session-context object shared by the client, the
// dispatcher and the recorder. It holds the two append-only transcript
// sequences and the status flags; there is no module-scope state.
type Conversation struct {
	mu sync.Mutex

	aiMessages   []string
	userMessages []string
	latestAI     string

	processing bool
	recording  bool
	errMessage string
}

func NewConversation() *Conversation {
	return &Conversation{}
}

// AppendAI appends one AI utterance and marks it as the latest.
func (c *Conversation) AppendAI(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aiMessages = append(c.aiMessages, msg)
	c.latestAI = msg
}

// AppendUser appends one user-authored entry.
func (c *Conversation) AppendUser(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userMessages = append(c.userMessages, msg)
}

// AIMessages returns a copy of the AI transcript in arrival order.
func (c *Conversation) AIMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.aiMessages))
	copy(out, c.aiMessages)
	return out
}

// UserMessages returns a copy of the user transcript in arrival order.
func (c *Conversation) UserMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.userMessages))
	copy(out, c.userMessages)
	return out
}

func (c *Conversation) LatestAI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestAI
}

func (c *Conversation) SetProcessing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processing = v
}

func (c *Conversation) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

func (c *Conversation) SetRecording(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = v
}

func (c *Conversation) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// SetError records the single user-visible error string.
func (c *Conversation) SetError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMessage = msg
}

func (c *Conversation) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMessage
}
