package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"eazyfind/internal/config"
	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"

	"gopkg.in/gomail.v2"
)

// Sender 发送一封已构造好的邮件。
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier 通过 SMTP 发送运行报告。
type EmailNotifier struct {
	cfg    config.EmailConfig
	logger *slog.Logger
	sender Sender
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg config.EmailConfig, log *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger.OrDiscard(log),
		sender: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
	}
}

// WithSender 替换发送实现。
func (n *EmailNotifier) WithSender(s Sender) *EmailNotifier {
	n.sender = s
	return n
}

// NotifyRun 发送运行报告。SMTP 或收件人未配置时跳过。
func (n *EmailNotifier) NotifyRun(ctx context.Context, report *model.RunReport) error {
	if report == nil {
		return nil
	}
	if n.cfg.SMTPHost == "" || n.cfg.FromEmail == "" || len(n.cfg.To) == 0 {
		n.logger.Warn("email config missing, skip run report", slog.String("run_id", report.RunID))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", n.cfg.To...)
	m.SetHeader("Subject", subject(report))
	m.SetBody("text/html", buildHTMLBody(report))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send run report: %w", err)
	}
	n.logger.Info("run report sent",
		slog.String("run_id", report.RunID),
		slog.Int("recipients", len(n.cfg.To)))
	return nil
}

func subject(r *model.RunReport) string {
	failed := len(r.Failed())
	if failed == 0 {
		return fmt.Sprintf("[EazyFind] %s run finished", r.Category)
	}
	return fmt.Sprintf("[EazyFind] %s run: %d of %d stores failed", r.Category, failed, len(r.Partitions))
}

func buildHTMLBody(r *model.RunReport) string {
	var rows strings.Builder
	for _, p := range r.Partitions {
		color := "#16a34a"
		if p.Status != model.PartitionDone {
			color = "#dc2626"
		}
		fmt.Fprintf(&rows,
			`<tr><td>%s</td><td style="color:%s">%s</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%s</td></tr>`,
			html.EscapeString(string(p.Store)), color, p.Status,
			p.Scraped, p.New, p.Updated, p.Deleted,
			html.EscapeString(p.Error))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8" /></head>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>%s</h2>
  <p>Run %s, %s to %s</p>
  <table cellpadding="6" style="border-collapse: collapse;" border="1">
    <tr><th>Store</th><th>Status</th><th>Scraped</th><th>New</th><th>Updated</th><th>Deleted</th><th>Error</th></tr>
    %s
  </table>
</body>
</html>`,
		html.EscapeString(subject(r)),
		html.EscapeString(r.RunID),
		r.StartedAt.Format("2006-01-02 15:04:05"),
		r.FinishedAt.Format("15:04:05"),
		rows.String())
}
