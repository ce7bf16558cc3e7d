package domain

import "errors"

var (
	// ErrInvalidSchedule rejects a schedule time not strictly in the future.
	ErrInvalidSchedule = errors.New("invalid_schedule")
	// ErrScheduleExists rejects a second pending schedule on one method.
	ErrScheduleExists = errors.New("schedule_exists")
	// ErrScheduleIDMissing flags an accepted schedule with no extractable id.
	ErrScheduleIDMissing = errors.New("schedule_id_missing")
	// ErrScheduleNotRevoked flags a cancel response not confirming the exact
	// requested schedule id.
	ErrScheduleNotRevoked = errors.New("schedule_not_revoked")
	// ErrReplaceConflict means another actor transitioned the order while a
	// method swap was being claimed.
	ErrReplaceConflict = errors.New("replace_conflict")
)
