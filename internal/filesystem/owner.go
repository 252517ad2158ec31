package filesystem

import (
	"os"
	"os/user"
	"sync"
	"time"
)

// unknownOwner is written when ownership cannot be determined
const unknownOwner = "?"

// OwnerResolver maps numeric ids to user and group names, caching lookups
type OwnerResolver struct {
	mu     sync.Mutex
	users  map[string]string
	groups map[string]string
}

// NewOwnerResolver creates an empty resolver
func NewOwnerResolver() *OwnerResolver {
	return &OwnerResolver{
		users:  make(map[string]string),
		groups: make(map[string]string),
	}
}

// Owner returns the owner and group names of an entry. Unknown ids are
// returned numerically.
func (r *OwnerResolver) Owner(info os.FileInfo) (owner, group string) {
	uid, gid, ok := getOwnerIDs(info)
	if !ok {
		return unknownOwner, unknownOwner
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owner, found := r.users[uid]
	if !found {
		owner = uid
		if u, err := user.LookupId(uid); err == nil {
			owner = u.Username
		}
		r.users[uid] = owner
	}

	group, found = r.groups[gid]
	if !found {
		group = gid
		if g, err := user.LookupGroupId(gid); err == nil {
			group = g.Name
		}
		r.groups[gid] = group
	}

	return owner, group
}

// ChangeTime returns the inode change time where the platform exposes it
func ChangeTime(info os.FileInfo) time.Time {
	return getChangeTime(info)
}
