package dbmodel

import "github.com/zeromicro/go-zero/core/stores/sqlx"

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = sqlx.ErrNotFound
