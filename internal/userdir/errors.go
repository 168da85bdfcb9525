package userdir

import "errors"

// ErrUserNotFound indicates the directory has no such user.
var ErrUserNotFound = errors.New("user not found")
