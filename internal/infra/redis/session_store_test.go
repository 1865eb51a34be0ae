package redis

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestSessionStoreClaimsAndReleasesKeys(t *testing.T) {
	mr := startRedis(t)
	store := NewSessionStore(newClient(mr), time.Minute)
	quiz := domain.NewQuizSnapshot(sampleQuiz())

	if !store.Insert(app.NewSession("ABCDE", quiz)) {
		t.Fatalf("expected insert to succeed")
	}
	if !mr.Exists("quiz:session:ABCDE") {
		t.Fatalf("expected redis key to be set")
	}

	store.Delete("ABCDE")
	if mr.Exists("quiz:session:ABCDE") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestSessionStoreRejectsIdClaimedElsewhere(t *testing.T) {
	mr := startRedis(t)
	if err := mr.Set("quiz:session:ABCDE", "1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewSessionStore(newClient(mr), time.Minute)

	if store.Insert(app.NewSession("ABCDE", domain.NewQuizSnapshot(sampleQuiz()))) {
		t.Fatalf("expected claimed id to be rejected")
	}
	if _, ok := store.Get("ABCDE"); ok {
		t.Fatalf("rejected session must not be stored")
	}
}

// stalledRedis accepts connections and never answers.
func stalledRedis(t *testing.T) *redis.Client {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	client := redis.NewClient(&redis.Options{
		Addr:                  lis.Addr().String(),
		ReadTimeout:           300 * time.Millisecond,
		WriteTimeout:          300 * time.Millisecond,
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
	})
	t.Cleanup(func() {
		_ = client.Close()
		_ = lis.Close()
		mu.Lock()
		for _, conn := range conns {
			_ = conn.Close()
		}
		mu.Unlock()
	})
	return client
}

func TestSessionStoreStalledRedisDoesNotBlockLookups(t *testing.T) {
	store := NewSessionStore(stalledRedis(t), time.Minute)
	quiz := domain.NewQuizSnapshot(sampleQuiz())

	if !store.Insert(app.NewSession("AAAAA", quiz)) {
		t.Fatalf("expected insert to fall back to the local map")
	}

	inserted := make(chan bool, 1)
	go func() { inserted <- store.Insert(app.NewSession("BBBBB", quiz)) }()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if _, ok := store.Get("AAAAA"); !ok {
		t.Fatalf("expected existing session")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("lookup waited %s on a pending claim", elapsed)
	}

	select {
	case ok := <-inserted:
		if !ok {
			t.Fatalf("expected second insert to succeed")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("claim round-trip was not bounded")
	}

	deleted := make(chan bool, 1)
	go func() { deleted <- store.Delete("AAAAA") }()
	time.Sleep(50 * time.Millisecond)

	start = time.Now()
	if _, ok := store.Get("BBBBB"); !ok {
		t.Fatalf("expected second session")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("lookup waited %s on a pending release", elapsed)
	}
	if !<-deleted {
		t.Fatalf("expected delete to succeed")
	}
}

func TestSessionStoreConcurrentInsertOfSameID(t *testing.T) {
	mr := startRedis(t)
	store := NewSessionStore(newClient(mr), time.Minute)
	quiz := domain.NewQuizSnapshot(sampleQuiz())

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Insert(app.NewSession("ABCDE", quiz)) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("expected exactly one insert to win, got %d", won)
	}
	if !mr.Exists("quiz:session:ABCDE") {
		t.Fatalf("winning claim must stay in redis")
	}
}

func TestSnapshotSinkSkipsOlderVersions(t *testing.T) {
	mr := startRedis(t)
	sink := NewSnapshotSink(newClient(mr), time.Minute)
	ctx := context.Background()

	if err := sink.SaveSession(ctx, domain.Snapshot{ID: "ABCDE", Version: 4, Phase: domain.PhaseResults}); err != nil {
		t.Fatalf("save v4: %v", err)
	}
	if err := sink.SaveSession(ctx, domain.Snapshot{ID: "ABCDE", Version: 3, Phase: domain.PhaseQuestion}); err != nil {
		t.Fatalf("save v3: %v", err)
	}

	got, err := sink.Load(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != 4 || got.Phase != domain.PhaseResults {
		t.Fatalf("expected version 4 to win, got %+v", got)
	}

	if err := sink.RemoveSession(ctx, "ABCDE"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := sink.Load(ctx, "ABCDE"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
