package models

import "time"

// SenderRole identifies who authored a conversation turn.
type SenderRole string

const (
	SenderUser SenderRole = "user"
	SenderAI   SenderRole = "ai"
)

// ConversationTurn is a single persisted turn. Immutable once stored;
// history is ordered oldest first and order is the only guarantee.
type ConversationTurn struct {
	Prompt     string     `json:"prompt"`
	SenderRole SenderRole `json:"sender_role"`
}

// WorkspaceMode is the top-level selector that decides whether per-chat
// mode routing applies at all.
type WorkspaceMode string

const (
	WorkspaceAutonomous WorkspaceMode = "autonomous"
	WorkspaceCocreator  WorkspaceMode = "cocreator"
)

// ChatMode selects the agent strategy for a chat in cocreator workspaces.
type ChatMode string

const (
	ModeChat       ChatMode = "chat"
	ModePlan       ChatMode = "plan"
	ModeBuild      ChatMode = "build"
	ModeThinker    ChatMode = "thinker"
	ModeSuperAgent ChatMode = "super_agent"
	ModeProMax     ChatMode = "pro_max"
)

// TaskStatus tracks a plan task through its one-way lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskComplete   TaskStatus = "complete"
)

// Task is a single unit of work inside a Plan. Status only ever moves
// forward; a failed task still lands on complete with Explanation set
// and Code empty, so plans always terminate.
type Task struct {
	Text        string     `json:"text"`
	Status      TaskStatus `json:"status"`
	Code        string     `json:"code,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
}

// Plan is a titled, ordered task list attached to one specific AI message.
type Plan struct {
	Title        string   `json:"title"`
	Introduction string   `json:"introduction,omitempty"`
	Features     []string `json:"features"`
	MermaidGraph string   `json:"mermaid_graph"`
	Tasks        []Task   `json:"tasks"`
	IsComplete   bool     `json:"is_complete"`
}

// Clarification is a question set awaiting user answers before plan
// generation proceeds. Answers are attached exactly once, by the
// resumption call, and never revised.
type Clarification struct {
	Prompt    string   `json:"prompt"`
	Questions []string `json:"questions"`
	Answers   []string `json:"answers,omitempty"`
}

// ThinkerStep is one structured response from the Thinker debate pipeline,
// kept on the outgoing message for later UI inspection.
type ThinkerStep struct {
	Thought  string `json:"thought"`
	Response string `json:"response"`
}

// OutgoingMessage is one message produced by an agent invocation.
type OutgoingMessage struct {
	ID            string         `json:"id"`
	ChatID        string         `json:"chat_id"`
	ProjectID     string         `json:"project_id,omitempty"`
	Text          string         `json:"text"`
	SenderRole    SenderRole     `json:"sender_role"`
	Code          string         `json:"code,omitempty"`
	Language      string         `json:"language,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	Plan          *Plan          `json:"plan,omitempty"`
	Clarification *Clarification `json:"clarification,omitempty"`
	Standing      *ThinkerStep   `json:"standing,omitempty"`
	Opposing      *ThinkerStep   `json:"opposing,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MemoryLayer partitions long-term context into four fixed categories.
type MemoryLayer string

const (
	LayerPersonal  MemoryLayer = "personal"
	LayerProject   MemoryLayer = "project"
	LayerCodebase  MemoryLayer = "codebase"
	LayerAesthetic MemoryLayer = "aesthetic"
)

// Memory is one long-term memory entry. Append-mostly; an agent may
// request creation but never edits another agent's entry.
type Memory struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Layer      MemoryLayer `json:"layer"`
	Content    string      `json:"content"`
	Importance float64     `json:"importance"` // 0..1
	UsageCount int         `json:"usage_count"`
	ProjectID  string      `json:"project_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ProjectFile is one generated file inside a project. Paths are full and
// explicit; there is no relative-path resolution.
type ProjectFile struct {
	Path     string `json:"path"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// Project is the coarse container owning chats, generated files, and the
// accumulated project memory blob.
type Project struct {
	ID            string                 `json:"id"`
	OwnerID       string                 `json:"owner_id"`
	Name          string                 `json:"name"`
	DefaultModel  string                 `json:"default_model,omitempty"`
	ProjectMemory string                 `json:"project_memory,omitempty"`
	Files         map[string]ProjectFile `json:"files,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ProjectUpdate is a partial project mutation emitted by an agent. Nil
// pointers mean "leave unchanged"; Files is merged over the existing map
// path by path, last write wins.
type ProjectUpdate struct {
	DefaultModel  *string                `json:"default_model,omitempty"`
	ProjectMemory *string                `json:"project_memory,omitempty"`
	Files         map[string]ProjectFile `json:"files,omitempty"`
}

// Chat links a conversation to its project and carries the mode selector.
type Chat struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id,omitempty"`
	Mode      ChatMode `json:"mode"`
	Title     string   `json:"title,omitempty"`
}

// Profile is the caller's account record. Credits gate image generation;
// admins bypass the cost check.
type Profile struct {
	UserID  string `json:"user_id"`
	Credits int64  `json:"credits"`
	IsAdmin bool   `json:"is_admin"`
}

// CostSettings is the single global cost table record, keyed by image
// model identifier. Missing models cost 1.
type CostSettings struct {
	ImageModelCosts map[string]int64 `json:"image_model_costs"`
}

// Cost returns the credit cost for an image model, defaulting to 1.
func (c *CostSettings) Cost(model string) int64 {
	if c == nil || c.ImageModelCosts == nil {
		return 1
	}
	if cost, ok := c.ImageModelCosts[model]; ok {
		return cost
	}
	return 1
}
