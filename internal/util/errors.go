package util

import "errors"

var (
	ErrUserNotFound         = errors.New("用户不存在")
	ErrEmailRegistered      = errors.New("该邮箱已被注册")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamLocked           = errors.New("exam is locked")
	ErrNoQuestions          = errors.New("exam has no questions")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrQuestionNotFound     = errors.New("question not part of this attempt")
	ErrSelectionNotAllowed  = errors.New("selective answering not enabled for this question")
	ErrBelowMinimumSelected = errors.New("deselecting would drop below the section minimum")
	ErrSubmissionInProgress = errors.New("submission already in progress")
)
