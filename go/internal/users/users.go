// Package users implements registration, login and the friend graph as
// transitions over the shared state document.
package users

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/pitdev14/workgp/go/internal/models"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrDuplicateUsername  = errors.New("username is already taken")
	ErrUnknownUser        = errors.New("no such user")
	ErrWrongPassword      = errors.New("incorrect password")
	ErrSelfFriend         = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends     = errors.New("already friends")
)

// Register creates a new user in state. Usernames are unique; the password
// is stored as a bcrypt hash.
func Register(state *models.State, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if _, exists := state.Users[username]; exists {
		return nil, ErrDuplicateUsername
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Records:      make(map[string]models.DayRecord),
	}
	state.Users[username] = user
	return user, nil
}

// Authenticate verifies a login attempt against the stored hash.
func Authenticate(state *models.State, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	user, exists := state.Users[username]
	if !exists {
		return nil, ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	return user, nil
}

// SendFriendRequest records a pending request on the target user. Sending
// again while one is pending is a no-op.
func SendFriendRequest(state *models.State, from, to string) error {
	if from == to {
		return ErrSelfFriend
	}
	sender, exists := state.Users[from]
	if !exists {
		return ErrUnknownUser
	}
	target, exists := state.Users[to]
	if !exists {
		return ErrUnknownUser
	}
	if sender.HasFriend(to) {
		return ErrAlreadyFriends
	}
	if !target.HasFriendRequest(from) {
		target.FriendRequests = append(target.FriendRequests, from)
	}
	return nil
}

// AcceptFriendRequest adds the symmetric friendship edge and clears any
// pending request in either direction. Accepting is idempotent: repeating
// it leaves both users unchanged.
func AcceptFriendRequest(state *models.State, username, from string) error {
	accepter, exists := state.Users[username]
	if !exists {
		return ErrUnknownUser
	}
	requester, exists := state.Users[from]
	if !exists {
		return ErrUnknownUser
	}

	accepter.RemoveFriendRequest(from)
	requester.RemoveFriendRequest(username)

	if !accepter.HasFriend(from) {
		accepter.Friends = append(accepter.Friends, from)
	}
	if !requester.HasFriend(username) {
		requester.Friends = append(requester.Friends, username)
	}
	return nil
}
