package domain

import "errors"

var (
	ErrOrderNotFound = errors.New("order_not_found")
	ErrNotSchedule   = errors.New("order_not_schedule")
	ErrNotReady      = errors.New("order_not_ready")
)
