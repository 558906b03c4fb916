package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSessionNotFound   = errors.New("session not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrMessageEmpty      = errors.New("message content is empty")
	ErrNoDataset         = errors.New("no dataset uploaded in this session")
	ErrAnalysisFailed    = errors.New("analysis failed")
	ErrLLMConfig         = errors.New("llm config is invalid")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)
