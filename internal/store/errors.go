package store

import "errors"

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrDuplicateKey     = errors.New("already exists")
	ErrTableNotActive   = errors.New("table did not become active within the deadline")
	ErrInvalidTableName = errors.New("invalid table name")
)
