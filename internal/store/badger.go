package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tidwall/sjson"

	"github.com/chatforge/chatforge/internal/models"
)

const (
	prefixProject = "project:"
	prefixChat    = "chat:"
	prefixMessage = "message:"
	prefixChatMsg = "chatmsg:" // chatmsg:<chatID>:<nano>:<msgID> -> msgID
	prefixProfile = "profile:"
	keyCostTable  = "settings:costs"
)

// BadgerGateway implements Gateway on BadgerDB. Records are JSON
// documents; writes go through serializable transactions, which is what
// gives DecrementCredits its atomic-counter guarantee.
type BadgerGateway struct {
	db *badger.DB
}

// NewBadgerGateway opens (or creates) the store at path.
func NewBadgerGateway(path string) (*BadgerGateway, error) {
	path = expandPath(path)

	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BadgerGateway{db: db}, nil
}

// GetProject reads a project record.
func (g *BadgerGateway) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	if err := g.get(prefixProject+id, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// PutProject writes a whole project record.
func (g *BadgerGateway) PutProject(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()
	return g.put(prefixProject+project.ID, project)
}

// ApplyProjectUpdate merges a partial update into a project inside one
// transaction. The files map is rebuilt copy-on-write: a new map merged
// over the old one, never mutated in place.
func (g *BadgerGateway) ApplyProjectUpdate(ctx context.Context, id string, update *models.ProjectUpdate) (*models.Project, error) {
	var merged models.Project

	err := g.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixProject + id)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &merged)
		}); err != nil {
			return err
		}

		if update.DefaultModel != nil {
			merged.DefaultModel = *update.DefaultModel
		}
		if update.ProjectMemory != nil {
			merged.ProjectMemory = *update.ProjectMemory
		}
		if len(update.Files) > 0 {
			files := make(map[string]models.ProjectFile, len(merged.Files)+len(update.Files))
			for path, file := range merged.Files {
				files[path] = file
			}
			for path, file := range update.Files {
				files[path] = file
			}
			merged.Files = files
		}
		merged.UpdatedAt = time.Now()

		data, err := json.Marshal(&merged)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}

	return &merged, nil
}

// GetChat reads a chat record.
func (g *BadgerGateway) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := g.get(prefixChat+id, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// PutChat writes a chat record.
func (g *BadgerGateway) PutChat(ctx context.Context, chat *models.Chat) error {
	return g.put(prefixChat+chat.ID, chat)
}

// PutMessage persists a message and its chat-order index entry.
func (g *BadgerGateway) PutMessage(ctx context.Context, msg *models.OutgoingMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return g.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixMessage+msg.ID), data); err != nil {
			return err
		}
		index := fmt.Sprintf("%s%s:%020d:%s", prefixChatMsg, msg.ChatID, msg.CreatedAt.UnixNano(), msg.ID)
		return txn.Set([]byte(index), []byte(msg.ID))
	})
}

// GetMessage reads a message by id.
func (g *BadgerGateway) GetMessage(ctx context.Context, id string) (*models.OutgoingMessage, error) {
	var msg models.OutgoingMessage
	if err := g.get(prefixMessage+id, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateMessagePlan patches the plan field inside the stored message
// document without rewriting the rest of it.
func (g *BadgerGateway) UpdateMessagePlan(ctx context.Context, messageID string, plan *models.Plan) error {
	return g.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixMessage + messageID)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var doc []byte
		if err := item.Value(func(val []byte) error {
			doc = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		patched, err := sjson.SetBytes(doc, "plan", plan)
		if err != nil {
			return fmt.Errorf("failed to patch plan: %w", err)
		}
		return txn.Set(key, patched)
	})
}

// ListMessages returns a chat's messages ordered by persistence time.
func (g *BadgerGateway) ListMessages(ctx context.Context, chatID string) ([]*models.OutgoingMessage, error) {
	var ids []string
	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixChatMsg + chatID + ":")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*models.OutgoingMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := g.GetMessage(ctx, id)
		if err != nil {
			continue // index entry for a purged message
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetProfile reads a caller's profile.
func (g *BadgerGateway) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := g.get(prefixProfile+userID, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// PutProfile writes a profile record.
func (g *BadgerGateway) PutProfile(ctx context.Context, profile *models.Profile) error {
	return g.put(prefixProfile+profile.UserID, profile)
}

// DecrementCredits deducts credits inside a single serializable
// transaction: read, check, write. Near-simultaneous decrements cannot
// double-spend; a conflicting transaction retries against the updated
// balance until it either succeeds or finds the balance too low.
func (g *BadgerGateway) DecrementCredits(ctx context.Context, userID string, amount int64) error {
	for {
		err := g.decrementOnce(userID, amount)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (g *BadgerGateway) decrementOnce(userID string, amount int64) error {
	return g.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixProfile + userID)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var profile models.Profile
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		}); err != nil {
			return err
		}

		if profile.Credits < amount {
			return ErrInsufficientCredits
		}
		profile.Credits -= amount

		data, err := json.Marshal(&profile)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// GetCostSettings reads the single global cost-settings record. A
// missing record is an empty table, not an error.
func (g *BadgerGateway) GetCostSettings(ctx context.Context) (*models.CostSettings, error) {
	var settings models.CostSettings
	err := g.get(keyCostTable, &settings)
	if err == ErrNotFound {
		return &models.CostSettings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// PutCostSettings writes the global cost-settings record.
func (g *BadgerGateway) PutCostSettings(ctx context.Context, settings *models.CostSettings) error {
	return g.put(keyCostTable, settings)
}

// Close closes the underlying BadgerDB instance.
func (g *BadgerGateway) Close() error {
	return g.db.Close()
}

func (g *BadgerGateway) get(key string, out any) error {
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	return err
}

func (g *BadgerGateway) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
