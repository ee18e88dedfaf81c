package pvpclient

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/Infactum/tg2sip/internal/contactcache"
)

// SearchContacts mirrors the original's searchContacts td_api call: a single
// contacts.getContacts fan-out used once at startup by contactcache.LoadAll.
func (c *Client) SearchContacts(ctx context.Context, query string, limit int) ([]int64, error) {
	if err := c.guardNotWorker(); err != nil {
		return nil, err
	}
	if query != "" {
		result, err := c.api.ContactsSearch(ctx, &tg.ContactsSearchRequest{Q: query, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("pvpclient: contacts.search: %w", err)
		}
		return userIDsFromUsers(result.Users), nil
	}

	result, err := c.api.ContactsGetContacts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("pvpclient: contacts.getContacts: %w", err)
	}
	contacts, ok := result.(*tg.ContactsContacts)
	if !ok {
		return nil, nil
	}
	return userIDsFromUsers(contacts.Users), nil
}

func userIDsFromUsers(users []tg.UserClass) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			ids = append(ids, user.ID)
		}
	}
	return ids
}

// GetUser mirrors the original's getUser td_api call, mapping a raw
// tg.User onto the cache's narrow Contact shape.
func (c *Client) GetUser(ctx context.Context, userID int64) (contactcache.Contact, error) {
	if err := c.guardNotWorker(); err != nil {
		return contactcache.Contact{}, err
	}
	users, err := c.api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUser{UserID: userID}})
	if err != nil {
		return contactcache.Contact{}, fmt.Errorf("pvpclient: users.getUsers(%d): %w", userID, err)
	}
	if len(users) == 0 {
		return contactcache.Contact{}, fmt.Errorf("pvpclient: no such user %d", userID)
	}
	user, ok := users[0].(*tg.User)
	if !ok {
		return contactcache.Contact{}, fmt.Errorf("pvpclient: user %d is deleted or unavailable", userID)
	}
	return contactToDomain(user), nil
}

func contactToDomain(user *tg.User) contactcache.Contact {
	return contactcache.Contact{
		UserID:     user.ID,
		Username:   user.Username,
		Phone:      user.Phone,
		HaveAccess: !user.Min, // a "min" user object lacks full access rights
	}
}

// SearchPublicChat mirrors the original's searchPublicChat td_api call,
// resolving a "tg#<username>" hint. ok is false when the resolved peer is
// not a private user chat (e.g. a channel or group).
func (c *Client) SearchPublicChat(ctx context.Context, username string) (int64, bool, error) {
	if err := c.guardNotWorker(); err != nil {
		return 0, false, err
	}
	resolved, err := c.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return 0, false, fmt.Errorf("pvpclient: contacts.resolveUsername(%q): %s", username, floodReason(err))
	}
	for _, u := range resolved.Users {
		if user, ok := u.(*tg.User); ok {
			return user.ID, true, nil
		}
	}
	return 0, false, nil
}

// ImportContacts mirrors the original's importContacts td_api call,
// resolving a phone number to a PVP user id. A 0 return means the number is
// not a PVP user, translated by the caller into contactcache.ErrNotRegistered.
func (c *Client) ImportContacts(ctx context.Context, phone string) (int64, error) {
	if err := c.guardNotWorker(); err != nil {
		return 0, err
	}
	result, err := c.api.ContactsImportContacts(ctx, []tg.InputPhoneContact{
		{ClientID: 1, Phone: phone},
	})
	if err != nil {
		return 0, fmt.Errorf("pvpclient: contacts.importContacts(%q): %s", phone, floodReason(err))
	}
	defer c.deleteImportedContact(ctx, result)

	if len(result.Imported) == 0 {
		return 0, nil
	}
	return result.Imported[0].UserID, nil
}

// deleteImportedContact reverses the temporary import once the lookup is
// done: the gateway only needs the id, not a standing contact relationship.
func (c *Client) deleteImportedContact(ctx context.Context, result tg.ContactsImportedContacts) {
	if len(result.Imported) == 0 {
		return
	}
	ids := make([]tg.InputUserClass, 0, len(result.Imported))
	for _, imp := range result.Imported {
		ids = append(ids, &tg.InputUser{UserID: imp.UserID})
	}
	if _, err := c.api.ContactsDeleteContacts(ctx, ids); err != nil {
		c.log.Warn("pvpclient: failed to clean up imported contact", "err", err)
	}
}
