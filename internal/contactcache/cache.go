// Package contactcache resolves SSP-side dial hints (a username or a phone
// number) to a PVP user id, backed by two maps populated once at startup and
// lazily extended on miss. Per spec, the cache is read and written only by
// the dispatcher goroutine, so no internal locking is required.
package contactcache

import "context"

// Contact is the subset of a PVP user record the cache needs.
type Contact struct {
	UserID     int64
	Username   string // empty if the user has none
	Phone      string // empty if the user has none
	HaveAccess bool
}

// Resolver is the narrow PVP contract the cache needs at startup and on a
// cache miss. A concrete adapter backed by a real PVP client implements it.
type Resolver interface {
	// SearchContacts returns the user ids of up to limit known contacts,
	// used once at startup; GetUser supplies each one's username/phone.
	SearchContacts(ctx context.Context, query string, limit int) ([]int64, error)
	// GetUser fetches the full contact record for a user id.
	GetUser(ctx context.Context, userID int64) (Contact, error)
	// SearchPublicChat resolves a "tg#<username>" hint to a user id. It
	// returns ok=false if the resolved chat is not a private user chat.
	SearchPublicChat(ctx context.Context, username string) (userID int64, ok bool, err error)
	// ImportContacts resolves a phone number to a user id, 0 meaning the
	// number is not a PVP user.
	ImportContacts(ctx context.Context, phone string) (userID int64, err error)
}

// Cache holds the two id maps. Create one with New: the zero value's maps
// are nil, so loading or resolving into it panics.
type Cache struct {
	byUsername map[string]int64
	byPhone    map[string]int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		byUsername: make(map[string]int64),
		byPhone:    make(map[string]int64),
	}
}

// LoadAll populates the cache at startup: a single SearchContacts fan-out
// followed by a GetUser per returned id. A user record lacking HaveAccess is
// skipped — per the resolved open question, the loop continues rather than
// aborting the whole load.
func (c *Cache) LoadAll(ctx context.Context, r Resolver) error {
	ids, err := r.SearchContacts(ctx, "", int(^uint32(0)>>1))
	if err != nil {
		return err
	}

	for _, id := range ids {
		contact, err := r.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if !contact.HaveAccess {
			continue
		}
		c.insert(contact)
	}
	return nil
}

func (c *Cache) insert(contact Contact) {
	if contact.Username != "" {
		c.byUsername[contact.Username] = contact.UserID
	}
	if contact.Phone != "" {
		c.byPhone[contact.Phone] = contact.UserID
	}
}

// ErrNotRegistered is returned by ResolvePhone when the remote resolves the
// phone number to user id 0, meaning it is not a PVP user.
var ErrNotRegistered = errNotRegistered{}

type errNotRegistered struct{}

func (errNotRegistered) Error() string { return "not registered" }

// ResolveUsername returns the user id for username, resolving and
// populating the cache on miss via SearchPublicChat.
func (c *Cache) ResolveUsername(ctx context.Context, r Resolver, username string) (int64, error) {
	if id, ok := c.byUsername[username]; ok {
		return id, nil
	}
	id, ok, err := r.SearchPublicChat(ctx, username)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotRegistered
	}
	c.byUsername[username] = id
	return id, nil
}

// ResolvePhone returns the user id for phone, resolving and populating the
// cache on miss via ImportContacts. A phone that resolves to user id 0
// yields ErrNotRegistered.
func (c *Cache) ResolvePhone(ctx context.Context, r Resolver, phone string) (int64, error) {
	if id, ok := c.byPhone[phone]; ok {
		return id, nil
	}
	id, err := r.ImportContacts(ctx, phone)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, ErrNotRegistered
	}
	c.byPhone[phone] = id
	return id, nil
}
