package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidInviteCode    = errors.New("invalid or expired invite code")
	ErrNotMember            = errors.New("user is not a member of this room")
	ErrInvalidMessage       = errors.New("message must carry content or an attachment")
	ErrInvalidCursor        = errors.New("invalid pagination cursor")
	ErrAttachmentTooLarge   = errors.New("attachment exceeds the configured size limit")
	ErrInternalServer       = errors.New("internal server error")
)
