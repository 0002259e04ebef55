package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Store persists receipts. Save returns the identifier assigned by the store.
type Store interface {
	Save(ctx context.Context, r Receipt) (string, error)
}

// envelope is one JSONL line: the receipt plus the id it was saved under.
type envelope struct {
	ID string `json:"id"`
	Receipt
}

// JSONLStore appends receipts to a local JSONL file, one per line.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONLStore creates the parent directory of path if needed.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("receipt: create directory: %w", err)
	}
	return &JSONLStore{path: path}, nil
}

// Save appends r with a new time-ordered id.
func (s *JSONLStore) Save(_ context.Context, r Receipt) (string, error) {
	id := ulid.Make().String()
	line, err := json.Marshal(envelope{ID: id, Receipt: r})
	if err != nil {
		return "", fmt.Errorf("receipt: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("receipt: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("receipt: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("receipt: sync: %w", err)
	}
	return id, nil
}

// ReadAll returns every receipt in the file keyed by id, in file order.
func (s *JSONLStore) ReadAll() ([]string, []Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("receipt: read: %w", err)
	}

	var ids []string
	var out []Receipt
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var env envelope
		if err := dec.Decode(&env); err != nil {
			return nil, nil, fmt.Errorf("receipt: decode line %d: %w", len(out)+1, err)
		}
		ids = append(ids, env.ID)
		out = append(out, env.Receipt)
	}
	return ids, out, nil
}

// Decode parses a receipt sent by a caller as a JSON object (for example as
// a tool argument) and checks it with the same rules as Assemble.
func Decode(data []byte) (Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("receipt: decode: %w", err)
	}
	meta := Metadata{
		TicketID:     r.TicketID,
		SpokeID:      r.SpokeID,
		Profile:      r.Profile,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		TokensInput:  r.TokensInput,
		TokensOutput: r.TokensOutput,
	}
	return Assemble(meta, r.ToolUsage, r.Status, r.OutcomeSummary)
}

// DecodeMap is Decode for an already-decoded JSON object.
func DecodeMap(m map[string]any) (Receipt, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt: encode: %w", err)
	}
	return Decode(data)
}
