package agent

import (
	"context"
	"sync"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
	"github.com/chatforge/chatforge/internal/store"
)

// fakeCompleter scripts provider behavior per call and records every
// request for assertions.
type fakeCompleter struct {
	mu       sync.Mutex
	requests []provider.Request

	textFn   func(req provider.Request) (string, error)
	jsonFn   func(call int, req provider.Request) ([]byte, error)
	streamFn func(req provider.Request, sink func(string)) (string, error)

	jsonCalls int
}

func (f *fakeCompleter) record(req provider.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeCompleter) CompleteText(_ context.Context, req provider.Request) (string, error) {
	f.record(req)
	if f.textFn == nil {
		return "ok", nil
	}
	return f.textFn(req)
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, req provider.Request, _ provider.Schema) ([]byte, error) {
	f.record(req)
	f.mu.Lock()
	call := f.jsonCalls
	f.jsonCalls++
	f.mu.Unlock()
	if f.jsonFn == nil {
		return []byte(`{}`), nil
	}
	return f.jsonFn(call, req)
}

func (f *fakeCompleter) StreamText(_ context.Context, req provider.Request, sink func(string)) (string, error) {
	f.record(req)
	if f.streamFn == nil {
		if sink != nil {
			sink("ok")
		}
		return "ok", nil
	}
	return f.streamFn(req, sink)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeImages counts image calls so tests can assert the credit gate
// short-circuits before the provider.
type fakeImages struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (f *fakeImages) GenerateImage(context.Context, string, string, string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.url == "" {
		return "https://img.test/1.png", nil
	}
	return f.url, nil
}

func (f *fakeImages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeGateway is an in-memory store.Gateway.
type fakeGateway struct {
	mu             sync.Mutex
	projects       map[string]*models.Project
	chats          map[string]*models.Chat
	messages       map[string]*models.OutgoingMessage
	order          []string
	profiles       map[string]*models.Profile
	costs          *models.CostSettings
	planWrites     int
	decrementCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		projects: make(map[string]*models.Project),
		chats:    make(map[string]*models.Chat),
		messages: make(map[string]*models.OutgoingMessage),
		profiles: make(map[string]*models.Profile),
		costs:    &models.CostSettings{},
	}
}

func (g *fakeGateway) GetProject(_ context.Context, id string) (*models.Project, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (g *fakeGateway) PutProject(_ context.Context, project *models.Project) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.projects[project.ID] = project
	return nil
}

func (g *fakeGateway) ApplyProjectUpdate(_ context.Context, id string, update *models.ProjectUpdate) (*models.Project, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	project, ok := g.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := *project
	if update.DefaultModel != nil {
		next.DefaultModel = *update.DefaultModel
	}
	if update.ProjectMemory != nil {
		next.ProjectMemory = *update.ProjectMemory
	}
	if len(update.Files) > 0 {
		merged := make(map[string]models.ProjectFile, len(next.Files)+len(update.Files))
		for path, file := range next.Files {
			merged[path] = file
		}
		for path, file := range update.Files {
			merged[path] = file
		}
		next.Files = merged
	}
	g.projects[id] = &next
	return &next, nil
}

func (g *fakeGateway) GetChat(_ context.Context, id string) (*models.Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (g *fakeGateway) PutChat(_ context.Context, chat *models.Chat) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chats[chat.ID] = chat
	return nil
}

func (g *fakeGateway) PutMessage(_ context.Context, msg *models.OutgoingMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.messages[msg.ID]; !ok {
		g.order = append(g.order, msg.ID)
	}
	g.messages[msg.ID] = msg
	return nil
}

func (g *fakeGateway) GetMessage(_ context.Context, id string) (*models.OutgoingMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (g *fakeGateway) UpdateMessagePlan(_ context.Context, messageID string, plan *models.Plan) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[messageID]
	if !ok {
		return store.ErrNotFound
	}
	msg.Plan = plan
	g.planWrites++
	return nil
}

func (g *fakeGateway) ListMessages(_ context.Context, chatID string) ([]*models.OutgoingMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.OutgoingMessage
	for _, id := range g.order {
		if g.messages[id].ChatID == chatID {
			out = append(out, g.messages[id])
		}
	}
	return out, nil
}

func (g *fakeGateway) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (g *fakeGateway) PutProfile(_ context.Context, profile *models.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[profile.UserID] = profile
	return nil
}

func (g *fakeGateway) DecrementCredits(_ context.Context, userID string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decrementCalls++
	profile, ok := g.profiles[userID]
	if !ok {
		return store.ErrNotFound
	}
	if profile.Credits < amount {
		return store.ErrInsufficientCredits
	}
	profile.Credits -= amount
	return nil
}

func (g *fakeGateway) GetCostSettings(context.Context) (*models.CostSettings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.costs, nil
}

func (g *fakeGateway) PutCostSettings(_ context.Context, settings *models.CostSettings) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.costs = settings
	return nil
}

func (g *fakeGateway) Close() error { return nil }

// testInput builds a minimal cocreator-mode input.
func testInput(prompt string) *AgentInput {
	return &AgentInput{
		Prompt: prompt,
		APIKey: "test-key",
		Model:  "test-model",
		Chat:   models.Chat{ID: "chat-1", ProjectID: "project-1", Mode: models.ModeChat},
		UserID: "user-1",
	}
}
