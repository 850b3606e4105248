package service

import (
	"errors"

	"bloomshield/internal/core"
	"bloomshield/internal/server/storage"
)

// Sentinel errors for the service layer.
var (
	ErrNotConfigured    = storage.ErrNotConfigured
	ErrHashFailed       = core.ErrHashFailed
	ErrStorageUpload    = errors.New("storage upload failed")
	ErrRecordInsert     = errors.New("record insert failed")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrNotFound         = errors.New("protection not found")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordTooLong  = errors.New("password is longer than 72 bytes")
)
