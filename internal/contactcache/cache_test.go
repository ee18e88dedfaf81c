package contactcache

import (
	"context"
	"errors"
	"testing"
)

type fakeResolver struct {
	contacts        map[int64]Contact
	searchIDs       []int64
	publicChatHits  map[string]int64
	importHits      map[string]int64
	publicChatCalls int
	importCalls     int
}

func (f *fakeResolver) SearchContacts(ctx context.Context, query string, limit int) ([]int64, error) {
	return f.searchIDs, nil
}

func (f *fakeResolver) GetUser(ctx context.Context, userID int64) (Contact, error) {
	c, ok := f.contacts[userID]
	if !ok {
		return Contact{}, errors.New("no such user")
	}
	return c, nil
}

func (f *fakeResolver) SearchPublicChat(ctx context.Context, username string) (int64, bool, error) {
	f.publicChatCalls++
	id, ok := f.publicChatHits[username]
	return id, ok, nil
}

func (f *fakeResolver) ImportContacts(ctx context.Context, phone string) (int64, error) {
	f.importCalls++
	return f.importHits[phone], nil
}

func TestLoadAllSkipsUsersWithoutAccess(t *testing.T) {
	r := &fakeResolver{
		searchIDs: []int64{1, 2, 3},
		contacts: map[int64]Contact{
			1: {UserID: 1, Username: "alice", HaveAccess: true},
			2: {UserID: 2, Username: "bob", HaveAccess: false},
			3: {UserID: 3, Phone: "15550001", HaveAccess: true},
		},
	}

	c := New()
	if err := c.LoadAll(context.Background(), r); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if id, ok := c.byUsername["alice"]; !ok || id != 1 {
		t.Errorf("alice not cached correctly: %v %v", id, ok)
	}
	if _, ok := c.byUsername["bob"]; ok {
		t.Error("bob lacks HaveAccess and should not be cached")
	}
	if id, ok := c.byPhone["15550001"]; !ok || id != 3 {
		t.Errorf("phone not cached correctly: %v %v", id, ok)
	}
}

func TestResolveUsernameCachesOnMiss(t *testing.T) {
	r := &fakeResolver{publicChatHits: map[string]int64{"carol": 42}}
	c := New()

	id, err := c.ResolveUsername(context.Background(), r, "carol")
	if err != nil || id != 42 {
		t.Fatalf("ResolveUsername = %d, %v", id, err)
	}
	if r.publicChatCalls != 1 {
		t.Fatalf("expected 1 SearchPublicChat call, got %d", r.publicChatCalls)
	}

	id2, err := c.ResolveUsername(context.Background(), r, "carol")
	if err != nil || id2 != 42 {
		t.Fatalf("second ResolveUsername = %d, %v", id2, err)
	}
	if r.publicChatCalls != 1 {
		t.Errorf("second resolution should hit cache, got %d RPC calls", r.publicChatCalls)
	}
}

func TestResolvePhoneNotRegistered(t *testing.T) {
	r := &fakeResolver{importHits: map[string]int64{}}
	c := New()

	_, err := c.ResolvePhone(context.Background(), r, "15559999")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestResolvePhoneIdempotentRPC(t *testing.T) {
	r := &fakeResolver{importHits: map[string]int64{"15550002": 7}}
	c := New()

	for i := 0; i < 2; i++ {
		id, err := c.ResolvePhone(context.Background(), r, "15550002")
		if err != nil || id != 7 {
			t.Fatalf("ResolvePhone call %d = %d, %v", i, id, err)
		}
	}
	if r.importCalls != 1 {
		t.Errorf("expected exactly one ImportContacts RPC, got %d", r.importCalls)
	}
}
