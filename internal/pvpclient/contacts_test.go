package pvpclient

import (
	"testing"

	"github.com/gotd/td/tg"
)

func TestContactToDomainHaveAccess(t *testing.T) {
	c := contactToDomain(&tg.User{ID: 1, Username: "alice", Phone: "15550001"})
	if !c.HaveAccess {
		t.Error("expected HaveAccess for a non-min user")
	}
	if c.Username != "alice" || c.Phone != "15550001" {
		t.Errorf("got %+v", c)
	}
}

func TestContactToDomainMinUserLacksAccess(t *testing.T) {
	c := contactToDomain(&tg.User{ID: 1, Min: true})
	if c.HaveAccess {
		t.Error("a min user object should not report HaveAccess")
	}
}

func TestUserIDsFromUsersSkipsNonFullUsers(t *testing.T) {
	ids := userIDsFromUsers([]tg.UserClass{
		&tg.User{ID: 1},
		&tg.UserEmpty{ID: 2},
		&tg.User{ID: 3},
	})
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("got %v, want [1 3]", ids)
	}
}
