package storage

import (
	"errors"
	"fmt"

	"github.com/eddiefleurent/wheel_tracker/internal/models"
)

// ErrUnknownDriver is returned for an unsupported storage driver name
var ErrUnknownDriver = errors.New("unknown storage driver")

// ErrNoActiveAccount is returned when no account has been activated yet.
// It matches models.ErrNotFound.
var ErrNoActiveAccount = fmt.Errorf("no active account: %w", models.ErrNotFound)
