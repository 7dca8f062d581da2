package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/dgo/v230"
	"github.com/dgraph-io/dgo/v230/protos/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DgraphCodebaseStore implements CodebaseStore on Dgraph: one node per
// generated file, keyed by (project, path), holding a short summary of
// what the file is for.
type DgraphCodebaseStore struct {
	client *dgo.Dgraph
	conn   *grpc.ClientConn
}

// NewDgraphCodebaseStore connects to the Dgraph alpha gRPC endpoint.
func NewDgraphCodebaseStore(alphaURL string) (*DgraphCodebaseStore, error) {
	conn, err := grpc.Dial(alphaURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Dgraph: %w", err)
	}

	client := dgo.NewDgraphClient(api.NewDgraphClient(conn))

	store := &DgraphCodebaseStore{
		client: client,
		conn:   conn,
	}

	if err := store.initSchema(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *DgraphCodebaseStore) initSchema(ctx context.Context) error {
	schema := `
		type CodeFile {
			file.key: string
			file.project: string
			file.path: string
			file.summary: string
			file.updated: datetime
		}

		file.key: string @index(exact) @upsert .
		file.project: string @index(exact) .
		file.path: string @index(term) .
		file.summary: string @index(fulltext) .
		file.updated: datetime .
	`

	op := &api.Operation{Schema: schema}
	return s.client.Alter(ctx, op)
}

// StoreFileFact records what a generated file is for, upserting on the
// (project, path) key so regeneration replaces the old summary.
func (s *DgraphCodebaseStore) StoreFileFact(ctx context.Context, projectID, path, summary string) error {
	key := projectID + "|" + path

	query := fmt.Sprintf(`{
		file(func: eq(file.key, %q)) {
			v as uid
		}
	}`, key)

	node := map[string]any{
		"uid":          "uid(v)",
		"file.key":     key,
		"file.project": projectID,
		"file.path":    path,
		"file.summary": summary,
		"file.updated": time.Now().Format(time.RFC3339),
		"dgraph.type":  "CodeFile",
	}
	setJSON, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal file fact: %w", err)
	}

	req := &api.Request{
		Query:     query,
		Mutations: []*api.Mutation{{SetJson: setJSON}},
		CommitNow: true,
	}

	txn := s.client.NewTxn()
	defer txn.Discard(ctx)

	_, err = txn.Do(ctx, req)
	return err
}

// ContextBlock renders the project's file knowledge as context text.
func (s *DgraphCodebaseStore) ContextBlock(ctx context.Context, projectID string) (string, error) {
	q := fmt.Sprintf(`{
		files(func: eq(file.project, %q)) {
			file.path
			file.summary
		}
	}`, projectID)

	txn := s.client.NewReadOnlyTxn()
	defer txn.Discard(ctx)

	resp, err := txn.Query(ctx, q)
	if err != nil {
		return "", fmt.Errorf("codebase query failed: %w", err)
	}

	var result struct {
		Files []struct {
			Path    string `json:"file.path"`
			Summary string `json:"file.summary"`
		} `json:"files"`
	}
	if err := json.Unmarshal(resp.Json, &result); err != nil {
		return "", fmt.Errorf("failed to parse codebase response: %w", err)
	}

	if len(result.Files) == 0 {
		return "", nil
	}

	var block strings.Builder
	for _, f := range result.Files {
		block.WriteString("- ")
		block.WriteString(f.Path)
		if f.Summary != "" {
			block.WriteString(": ")
			block.WriteString(f.Summary)
		}
		block.WriteString("\n")
	}
	return block.String(), nil
}

// Close closes the Dgraph connection.
func (s *DgraphCodebaseStore) Close() error {
	return s.conn.Close()
}
