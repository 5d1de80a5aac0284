package models

// User represents a racer in the system. Users are created at registration
// and never deleted; friend actions and task completion mutate them in place.
type User struct {
	Username       string               `json:"username"`
	PasswordHash   string               `json:"password_hash"`
	Friends        []string             `json:"friends"`
	FriendRequests []string             `json:"friend_requests"`
	Points         int                  `json:"points"`
	Records        map[string]DayRecord `json:"records"` // keyed by work date, "2006-01-02"
}

// HasFriend reports whether username is already in the friends list.
func (u *User) HasFriend(username string) bool {
	for _, f := range u.Friends {
		if f == username {
			return true
		}
	}
	return false
}

// HasFriendRequest reports whether a pending request from username exists.
func (u *User) HasFriendRequest(username string) bool {
	for _, f := range u.FriendRequests {
		if f == username {
			return true
		}
	}
	return false
}

// RemoveFriendRequest drops any pending request from username.
func (u *User) RemoveFriendRequest(username string) {
	out := u.FriendRequests[:0]
	for _, f := range u.FriendRequests {
		if f != username {
			out = append(out, f)
		}
	}
	u.FriendRequests = out
}

// State is the full persisted document: every user keyed by username.
// It is read on startup and written wholesale after every mutation.
type State struct {
	Users map[string]*User `json:"users"`
}

// NewState returns an empty state document.
func NewState() *State {
	return &State{Users: make(map[string]*User)}
}
