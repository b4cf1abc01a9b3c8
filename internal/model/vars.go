package model

import "github.com/zeromicro/go-zero/core/stores/sqlx"

// ErrNotFound is returned when a queried row does not exist.
var ErrNotFound = sqlx.ErrNotFound
