package http

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	gateway *app.Gateway
	sink    *flakySink
	gate    *auth.Gate
}

// flakySink is a memory sink whose saves can be made to fail.
type flakySink struct {
	*memory.SnapshotSink

	mu  sync.Mutex
	err error
}

func (f *flakySink) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *flakySink) SaveSession(ctx context.Context, snap domain.Snapshot) error {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.SnapshotSink.SaveSession(ctx, snap)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	store := app.NewSessionStore(memory.NewSessionStore(), quizzes)
	sink := &flakySink{SnapshotSink: memory.NewSnapshotSink()}
	gateway := app.NewGateway(store, app.NewBroadcaster(store, 0), sink)
	gate, err := auth.NewGate("lidera", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}

	engine := gin.New()
	NewHandler(gateway, gate, "https://quiz.example").Register(engine)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return &testServer{Server: server, gateway: gateway, sink: sink, gate: gate}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"capitals": {
			ID:   "capitals",
			Name: "Capitals",
			Questions: []domain.Question{
				{ID: "q1", Text: "Capital of France?", Options: []string{"Berlin", "Paris", "Rome"}, CorrectAnswer: 1},
				{ID: "q2", Text: "Capital of Japan?", Options: []string{"Tokyo", "Osaka"}, CorrectAnswer: 0},
			},
		},
	}
}
