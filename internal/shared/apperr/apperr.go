// Package apperr holds the error kinds shared by the presence flow.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrPermissionDenied: the device refused location (or media) access.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRemoteWrite: a document or realtime store write failed. Retryable by the user.
	ErrRemoteWrite = errors.New("remote write failed")
	// ErrRemoteRead: a venue list or presence fetch failed.
	ErrRemoteRead = errors.New("remote read failed")
	// ErrNotFound: a referenced venue or user does not exist.
	ErrNotFound = errors.New("not found")
)

// Write tags err as a failed remote write. Kinds already present are kept.
func Write(op string, err error) error {
	return wrap(op, ErrRemoteWrite, err)
}

// Read tags err as a failed remote read. Kinds already present are kept.
func Read(op string, err error) error {
	return wrap(op, ErrRemoteRead, err)
}

func wrap(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrRemoteWrite) || errors.Is(err, ErrRemoteRead) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Status maps an error kind to the HTTP status handed to clients.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, ErrRemoteWrite):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrRemoteRead):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// HTTP converts err into a fiber error carrying the mapped status.
func HTTP(err error) error {
	return fiber.NewError(Status(err), err.Error())
}
