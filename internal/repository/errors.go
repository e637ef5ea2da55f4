package repository

import (
	"errors"

	"github.com/corpchat/internal/docstore"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrAlreadyExists       = errors.New("already exists")
	ErrOversizeAttachment  = errors.New("attachment too large")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrConversationMembers = errors.New("conversation requires exactly two distinct members")
)

// mapStoreErr переводит ошибки хранилища в ошибки уровня репозиториев.
func mapStoreErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
