package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"OrderAtlas/src/config"

	"github.com/jordan-wright/email"
)

// NewReportEmail 构造附带报表的邮件
func NewReportEmail(c *config.Config, reportPath, runID string) (*email.Email, error) {
	if _, err := os.Stat(reportPath); err != nil {
		return nil, fmt.Errorf("附件文件不存在: %w", err)
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("OrderAtlas <%s>", c.SendEmail.Username)
	e.To = c.SendEmail.To
	e.Subject = c.SendEmail.Subject
	e.Text = []byte(fmt.Sprintf("报表已生成，运行ID: %s\n", runID))
	if _, err := e.AttachFile(reportPath); err != nil {
		return nil, fmt.Errorf("附件添加失败: %w", err)
	}
	return e, nil
}

// SendReport 通过SMTP(显式TLS)发送报表
func SendReport(c *config.Config, reportPath, runID string) error {
	e, err := NewReportEmail(c, reportPath, runID)
	if err != nil {
		return err
	}

	// 确保服务器地址包含端口
	smtpAddr := c.SendEmail.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465" // 默认 SSL 端口
	}
	host := strings.Split(smtpAddr, ":")[0]

	err = e.SendWithTLS(
		smtpAddr,
		smtp.PlainAuth("", c.SendEmail.Username, c.SendEmail.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败 (server %s): %w", smtpAddr, err)
	}
	return nil
}
