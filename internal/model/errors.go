package model

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")

	// ErrPercentOutOfRange 进度百分比必须在 [0,100] 内
	ErrPercentOutOfRange = errors.New("progression percentage out of range")

	// ErrStaleProgression caller 提供的当前百分比与数据库不一致
	ErrStaleProgression = errors.New("stale progression baseline")

	// ErrDuplicateObligation 同一项目同一里程碑的付款义务已存在
	ErrDuplicateObligation = errors.New("duplicate payment obligation")

	// ErrInvalidTransition 付款状态机不允许该转换
	ErrInvalidTransition = errors.New("invalid payment status transition")

	// ErrTransactionIDRequired 客户提交付款必须带交易号
	ErrTransactionIDRequired = errors.New("transaction id is required")

	// ErrEmailTaken 注册邮箱已被占用
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials 登录凭证错误
	ErrInvalidCredentials = errors.New("invalid credentials")
)
