package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "audittrail/pkg/domain-errors"
)

// mockEmitter is a test double for the Emitter interface.
type mockEmitter struct {
	events    []Event
	shouldErr bool
}

func (m *mockEmitter) Emit(_ context.Context, event Event) error {
	if m.shouldErr {
		return errors.New("emit failed")
	}
	m.events = append(m.events, event)
	return nil
}

// failingStore rejects every append.
type failingStore struct {
	MemoryStore
}

func (s *failingStore) Append(context.Context, *Event) error {
	return errors.New("connection refused")
}

type WriterSuite struct {
	suite.Suite
	store   *MemoryStore
	emitter *mockEmitter
	writer  *Writer
}

func TestWriterSuite(t *testing.T) {
	suite.Run(t, new(WriterSuite))
}

func (s *WriterSuite) SetupTest() {
	s.store = NewMemoryStore(nil)
	s.emitter = &mockEmitter{}
	s.writer = NewWriter(s.store, s.emitter, testLogger(), nil)
}

func (s *WriterSuite) validEntry() Entry {
	return Entry{
		EntityKind: "contact",
		EntityID:   "c-1",
		Action:     "created",
		Summary:    "Created contact (c-1)",
		ActorID:    "u1",
	}
}

func (s *WriterSuite) listAll() []*Event {
	events, _, err := s.store.List(context.Background(), Query{Page: 1, PageSize: 100})
	s.Require().NoError(err)
	return events
}

func (s *WriterSuite) TestWritePersistsEvent() {
	err := s.writer.Write(context.Background(), s.validEntry())
	s.Require().NoError(err)

	events := s.listAll()
	s.Require().Len(events, 1)
	s.Equal("contact", events[0].EntityKind)
	s.Equal("created", events[0].Action)
	s.Equal("u1", events[0].ActorID)
	s.NotZero(events[0].ID)
	s.False(events[0].CreatedAt.IsZero())
}

func (s *WriterSuite) TestWriteRejectsIncompleteEntries() {
	tests := []struct {
		name  string
		strip func(*Entry)
	}{
		{"missing entity kind", func(e *Entry) { e.EntityKind = "" }},
		{"missing action", func(e *Entry) { e.Action = "" }},
		{"missing summary", func(e *Entry) { e.Summary = "" }},
		{"missing actor", func(e *Entry) { e.ActorID = "" }},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			entry := s.validEntry()
			tt.strip(&entry)

			err := s.writer.Write(context.Background(), entry)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
			s.Empty(s.listAll())
		})
	}
}

func (s *WriterSuite) TestWriteFillsDefaultsFromRequestContext() {
	rc := &RequestContext{
		CorrelationID: "req-42",
		PackName:      "crm",
		Method:        "POST",
		Path:          "/api/crm/contacts",
		ActorName:     "ada@example.com",
		SessionID:     "sess-1",
		IPAddress:     "10.0.0.1",
		UserAgent:     "curl/8.0",
	}
	ctx := WithRequestContext(context.Background(), rc)

	s.Require().NoError(s.writer.Write(ctx, s.validEntry()))

	events := s.listAll()
	s.Require().Len(events, 1)
	event := events[0]
	s.Equal("req-42", event.CorrelationID)
	s.Equal("crm", event.PackName)
	s.Equal("POST", event.Method)
	s.Equal("/api/crm/contacts", event.Path)
	s.Equal("ada@example.com", event.ActorName)
	s.Equal("sess-1", event.SessionID)
	s.Equal("10.0.0.1", event.IPAddress)
	s.Equal("curl/8.0", event.UserAgent)
	s.Equal(ActorUser, event.ActorType)
	s.Equal("created", event.EventType)
}

func (s *WriterSuite) TestWriteKeepsExplicitFields() {
	rc := &RequestContext{CorrelationID: "req-42", PackName: "crm"}
	ctx := WithRequestContext(context.Background(), rc)

	entry := s.validEntry()
	entry.CorrelationID = "manual-corr"
	entry.ActorType = ActorSystem
	entry.EventType = "import"

	s.Require().NoError(s.writer.Write(ctx, entry))

	events := s.listAll()
	s.Require().Len(events, 1)
	s.Equal("manual-corr", events[0].CorrelationID)
	s.Equal(ActorSystem, events[0].ActorType)
	s.Equal("import", events[0].EventType)
	s.Equal("crm", events[0].PackName)
}

func (s *WriterSuite) TestWriteMarksRequestWritten() {
	rc := &RequestContext{}
	ctx := WithRequestContext(context.Background(), rc)

	s.Require().NoError(s.writer.Write(ctx, s.validEntry()))
	s.Equal(int64(1), rc.Writes())

	s.Require().NoError(s.writer.Write(ctx, s.validEntry()))
	s.Equal(int64(2), rc.Writes())
}

func (s *WriterSuite) TestWriteOutsideRequestScope() {
	s.Require().NoError(s.writer.Write(context.Background(), s.validEntry()))
	s.Len(s.listAll(), 1)
}

func (s *WriterSuite) TestWritePropagatesStoreFailure() {
	writer := NewWriter(&failingStore{}, s.emitter, testLogger(), nil)
	rc := &RequestContext{}
	ctx := WithRequestContext(context.Background(), rc)

	err := writer.Write(ctx, s.validEntry())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(int64(0), rc.Writes())
	s.Empty(s.emitter.events)
}

func (s *WriterSuite) TestWriteFansOutAfterPersist() {
	s.Require().NoError(s.writer.Write(context.Background(), s.validEntry()))

	s.Require().Len(s.emitter.events, 1)
	s.Equal("created", s.emitter.events[0].Action)
}

func (s *WriterSuite) TestWriteSwallowsEmitFailure() {
	s.emitter.shouldErr = true

	err := s.writer.Write(context.Background(), s.validEntry())
	s.Require().NoError(err)
	s.Len(s.listAll(), 1)
}
