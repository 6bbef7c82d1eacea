package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials 用户不存在与密码错误统一返回这一个错误
	ErrInvalidCredentials    = errors.New("invalid username or password")
	ErrSessionInvalid        = errors.New("session invalid")
	ErrStateMismatch         = errors.New("state mismatch")
	ErrStateExpired          = errors.New("state expired or already used")
	ErrExchangeFailed        = errors.New("authorization code exchange failed")
	ErrAccountNotProvisioned = errors.New("external login account not provisioned")
	ErrOAuthDisabled         = errors.New("external login not configured")
	ErrPostNotFound          = errors.New("post not found")
)

// ProviderError 身份提供方在回调里返回的 error
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("identity provider error: %s", e.Code)
	}
	return fmt.Sprintf("identity provider error: %s: %s", e.Code, e.Description)
}

// AttachmentError 附件处理失败；不影响帖子其余字段的保存
type AttachmentError struct {
	Op       string // name, upload
	Filename string
	Err      error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("image upload failed (%s %q): %v", e.Op, e.Filename, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}
