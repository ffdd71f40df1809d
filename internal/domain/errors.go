package domain

import "errors"

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrSlugConflict      = errors.New("slug already taken")
	ErrDuplicateSource   = errors.New("source id already stored")
	ErrInvalidSourcePost = errors.New("invalid source post")
)
