package service

import (
	"errors"

	"github.com/sifan077/clicklink/internal/app/apperr"
)

var (
	ErrEmptyURL            = apperr.New(apperr.KindInvalidInput, errors.New("url is required"))
	ErrEmptyCode           = apperr.New(apperr.KindInvalidInput, errors.New("short code is required"))
	ErrAllocationExhausted = apperr.New(apperr.KindAllocationExhausted, errors.New("unable to allocate a unique short code"))
	ErrQueueUnavailable    = apperr.New(apperr.KindQueueUnavailable, errors.New("click queue unavailable"))
	ErrMalformedEvent      = apperr.New(apperr.KindInvalidInput, errors.New("malformed click event"))
)
