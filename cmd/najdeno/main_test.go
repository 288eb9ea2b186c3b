package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/feed"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/realtime"
	"github.com/erazemk/najdeno/internal/store"
)

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := generatePassword(16)
	if len(a) != 16 {
		t.Errorf("expected 16 characters, got %d", len(a))
	}
	if a == b {
		t.Errorf("expected different passwords, got %q twice", a)
	}
}

func TestInitDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "najdeno.sqlite3")
	ctx := context.Background()

	database, password, err := initDatabase(ctx, path, "Admin@Uni.si")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	defer database.Close()

	admin, err := store.GetUserByEmail(ctx, database, "admin@uni.si")
	if err != nil || admin == nil {
		t.Fatalf("expected admin user, got %v, %v", admin, err)
	}
	if admin.Role != "admin" {
		t.Errorf("expected admin role, got %q", admin.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		t.Errorf("printed password does not match stored hash")
	}

	var out bytes.Buffer
	printInitResult(&out, path, admin.Email, password)
	if !strings.Contains(out.String(), password) {
		t.Errorf("init output missing password")
	}
}

func TestInitDatabaseRejectsBadEmail(t *testing.T) {
	if _, _, err := initDatabase(context.Background(), filepath.Join(t.TempDir(), "x.sqlite3"), "not-an-email"); err == nil {
		t.Fatal("expected error for invalid admin email")
	}
}

func TestPrintFeed(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, title := range []string{"Green scarf", "Keys on a ring", "Grey scarf"} {
		status := "lost"
		if i == 1 {
			status = "found"
		}
		_, err := store.CreateItem(ctx, database, store.NewItem{
			Title: title, Category: "clothing", Location: "Hall", Status: status,
			Date: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	var out bytes.Buffer
	err := printFeed(ctx, &out, database, feed.Filter{Status: feed.StatusLost, Search: "scarf", SortBy: feed.SortOldest})
	if err != nil {
		t.Fatalf("printFeed: %v", err)
	}

	got := out.String()
	green, grey := strings.Index(got, "Green scarf"), strings.Index(got, "Grey scarf")
	if green < 0 || grey < 0 || green > grey {
		t.Errorf("expected Green before Grey, got:\n%s", got)
	}
	if strings.Contains(got, "Keys") {
		t.Errorf("found item should be filtered out:\n%s", got)
	}
	if !strings.HasSuffix(got, "2 items\n") {
		t.Errorf("expected count line, got:\n%s", got)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFollowFeed(t *testing.T) {
	database := db.NewTestDB(t)
	hub := realtime.NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- followFeed(ctx, &out, database, hub, feed.Filter{Status: feed.StatusFound}, 4)
	}()

	waitFor(t, func() bool { return strings.Contains(out.String(), "0 items") })
	// followFeed subscribes before printing, so the hub already has a subscriber.
	hub.Publish(model.Item{ID: "a", Title: "Lost mitten", Status: model.ItemStatusLost, Category: "clothing", Date: time.Now()})
	hub.Publish(model.Item{ID: "b", Title: "Found mitten", Status: model.ItemStatusFound, Category: "clothing", Date: time.Now()})

	waitFor(t, func() bool { return strings.Contains(out.String(), "Found mitten") })
	if strings.Contains(out.String(), "Lost mitten") {
		t.Errorf("lost item should not pass the found filter:\n%s", out.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("followFeed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("followFeed did not stop")
	}
}
