// Package notify 发送运行结果通知。
package notify

import (
	"context"

	"eazyfind/internal/model"
)

// Notifier 运行报告通知接口。
type Notifier interface {
	// NotifyRun 发送一次分类运行的报告，通常只在存在失败分区时调用。
	NotifyRun(ctx context.Context, report *model.RunReport) error
}

// Nop 不发送任何通知。
type Nop struct{}

func (Nop) NotifyRun(context.Context, *model.RunReport) error { return nil }
