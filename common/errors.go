package common

import "errors"

// Catalog boundary errors.
var (
	ErrTableAlreadyExist  = errors.New("table already exists")
	ErrTableNotExist      = errors.New("table not exists")
	ErrIndexAlreadyExist  = errors.New("index already exists")
	ErrIndexNotFound      = errors.New("index not found")
	ErrColumnNameNotExist = errors.New("column name not exists")
	ErrFailed             = errors.New("operation failed")
)

// Index errors.
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Buffer pool and page errors.
var (
	ErrNoFreeFrames  = errors.New("all frames are pinned")
	ErrPageNotFound  = errors.New("page not found")
	ErrPagePinned    = errors.New("page is pinned")
	ErrPageCorrupted = errors.New("page corrupted")
	ErrTupleTooLarge = errors.New("tuple too large for page")
)

// Executor errors.
var (
	ErrInvalidPredicate = errors.New("invalid predicate shape")
	ErrNoUsableIndex    = errors.New("no usable index for predicate")
)
