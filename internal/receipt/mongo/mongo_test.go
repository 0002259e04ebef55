package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/ppiankov/toolwarden/internal/ledger"
	"github.com/ppiankov/toolwarden/internal/receipt"
)

// fakeCollection stores raw BSON so tests exercise the real codec.
type fakeCollection struct {
	docs      map[bson.ObjectID][]byte
	insertErr error
	nextID    bson.ObjectID
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[bson.ObjectID][]byte)}
}

func (f *fakeCollection) InsertOne(_ context.Context, document any) (*mongodriver.InsertOneResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	raw, err := bson.Marshal(document)
	if err != nil {
		return nil, err
	}
	id := f.nextID
	if id.IsZero() {
		id = bson.NewObjectID()
	}
	f.docs[id] = raw
	return &mongodriver.InsertOneResult{InsertedID: id}, nil
}

func (f *fakeCollection) FindOne(_ context.Context, filter any) singleResult {
	m, ok := filter.(bson.M)
	if !ok {
		return fakeResult{err: errors.New("unexpected filter")}
	}
	id, _ := m["_id"].(bson.ObjectID)
	raw, ok := f.docs[id]
	if !ok {
		return fakeResult{err: mongodriver.ErrNoDocuments}
	}
	return fakeResult{raw: raw}
}

type fakeResult struct {
	raw []byte
	err error
}

func (r fakeResult) Decode(v any) error {
	if r.err != nil {
		return r.err
	}
	return bson.Unmarshal(r.raw, v)
}

func sampleReceipt(t *testing.T, status receipt.Status, summary *string) receipt.Receipt {
	t.Helper()
	start := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	r, err := receipt.Assemble(receipt.Metadata{
		TicketID:     "ticket-42",
		SpokeID:      "spoke-a",
		Profile:      "triage",
		StartTime:    start,
		EndTime:      start.Add(90 * time.Second),
		TokensInput:  1200,
		TokensOutput: 340,
	}, ledger.Usage{"read_queue": 1, "update_ticket": 2}, status, summary)
	require.NoError(t, err)
	return r
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	summary := "closed ticket"
	cases := []struct {
		name    string
		status  receipt.Status
		summary *string
	}{
		{name: "success_with_summary", status: receipt.StatusSuccess, summary: &summary},
		{name: "blocked_without_summary", status: receipt.StatusBlocked},
		{name: "failed", status: receipt.StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newStore(newFakeCollection(), 0)
			want := sampleReceipt(t, tc.status, tc.summary)

			id, err := s.Save(context.Background(), want)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			got, err := s.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, want.TicketID, got.TicketID)
			assert.Equal(t, want.Status, got.Status)
			assert.True(t, want.StartTime.Equal(got.StartTime), "start %s vs %s", want.StartTime, got.StartTime)
			assert.True(t, want.EndTime.Equal(got.EndTime), "end %s vs %s", want.EndTime, got.EndTime)
			assert.Equal(t, want.ToolUsage, got.ToolUsage)
			assert.Equal(t, want.TokensInput, got.TokensInput)
			assert.Equal(t, want.TokensOutput, got.TokensOutput)
			assert.Equal(t, want.Summary(), got.Summary())
			assert.Equal(t, want.OutcomeSummary == nil, got.OutcomeSummary == nil)
		})
	}
}

func TestStoreSaveReturnsHexID(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	coll.nextID = bson.NewObjectID()
	s := newStore(coll, time.Second)

	id, err := s.Save(context.Background(), sampleReceipt(t, receipt.StatusSuccess, nil))
	require.NoError(t, err)
	assert.Equal(t, coll.nextID.Hex(), id)
}

func TestStoreSaveError(t *testing.T) {
	t.Parallel()

	coll := newFakeCollection()
	coll.insertErr = errors.New("not primary")
	s := newStore(coll, 0)

	_, err := s.Save(context.Background(), sampleReceipt(t, receipt.StatusSuccess, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, coll.insertErr)
}

func TestStoreGetInvalidID(t *testing.T) {
	t.Parallel()

	s := newStore(newFakeCollection(), 0)
	_, err := s.Get(context.Background(), "not-hex")
	require.Error(t, err)
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	s := newStore(newFakeCollection(), 0)
	_, err := s.Get(context.Background(), bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, mongodriver.ErrNoDocuments)
}

func TestNewRequiresClientAndDatabase(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)
}
