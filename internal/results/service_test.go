package results

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records map[string]Record
	err     error
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]Record{}} }

func (f *fakeStore) Upsert(ctx context.Context, rec Record) error {
	if f.err != nil {
		return f.err
	}
	f.records[rec.SubmissionID] = rec
	return nil
}

func (f *fakeStore) Get(ctx context.Context, submissionID string) (Record, error) {
	rec, ok := f.records[submissionID]
	if !ok {
		return Record{}, assert.AnError
	}
	return rec, nil
}

func newTestService(store Store) *Service {
	return &Service{store: store, log: zerolog.Nop()}
}

func TestHandlePersistsWellFormedPayload(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	body, err := json.Marshal(Payload{SubmissionID: "sub-1", PluginName: "echo", Status: "SUCCESS", Result: "42"})
	require.NoError(t, err)

	svc.handle(context.Background(), body)

	rec, ok := store.records["sub-1"]
	require.True(t, ok)
	assert.Equal(t, "echo", rec.PluginName)
	assert.Equal(t, "SUCCESS", rec.Status)
	assert.Equal(t, "42", rec.Result)
	assert.NotNil(t, rec.CompletedAt)
}

func TestHandleDropsMalformedJSON(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	svc.handle(context.Background(), []byte("not json"))

	assert.Empty(t, store.records)
}

func TestHandleDropsPayloadMissingSubmissionID(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	body, err := json.Marshal(Payload{PluginName: "echo", Status: "SUCCESS"})
	require.NoError(t, err)

	svc.handle(context.Background(), body)

	assert.Empty(t, store.records)
}

func TestHandleSurvivesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.err = assert.AnError
	svc := newTestService(store)

	body, err := json.Marshal(Payload{SubmissionID: "sub-1", Status: "FAILED"})
	require.NoError(t, err)

	assert.NotPanics(t, func() { svc.handle(context.Background(), body) })
}
