// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"OrderAtlas/src/config"
	"OrderAtlas/src/storage"

	"go.uber.org/zap"
)

// SourceAttachmentHandler 把邮件附件保存为数据源文件。
// 只保存文件名与某个数据源路径的文件名相同的附件。
type SourceAttachmentHandler struct {
	TargetSubject string            // 目标邮件主题关键词
	targets       map[string]string // 附件文件名 -> 保存路径
	processedUIDs map[uint32]bool   // 已处理邮件UID记录
	mu            sync.RWMutex      // 保护processedUIDs的读写锁
}

// NewSourceAttachmentHandler 根据配置中的文件数据源生成保存规则
func NewSourceAttachmentHandler(cfg *config.Config) *SourceAttachmentHandler {
	h := &SourceAttachmentHandler{
		TargetSubject: cfg.Email.TargetSubject,
		targets:       make(map[string]string),
		processedUIDs: make(map[uint32]bool),
	}
	for _, src := range cfg.Sources {
		if src.Kind == "postgres" || src.Path == "" {
			continue
		}
		path := cfg.SourcePath(src)
		h.targets[strings.ToLower(filepath.Base(path))] = path
	}
	return h
}

// isProcessed 检查邮件是否已处理过（线程安全）
func (h *SourceAttachmentHandler) isProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *SourceAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 保存匹配的附件，返回写入的文件路径
func (h *SourceAttachmentHandler) Handle(email *Email) ([]string, error) {
	if email == nil || h.isProcessed(email.UID) {
		return nil, nil
	}
	if !strings.Contains(email.Subject, h.TargetSubject) {
		return nil, nil
	}

	var saved []string
	for _, attachment := range email.Attachments {
		path, ok := h.targets[strings.ToLower(filepath.Base(attachment.Filename))]
		if !ok {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return saved, fmt.Errorf("创建目录失败: %w", err)
		}
		if err := writeFileAtomic(path, attachment.Content); err != nil {
			return saved, fmt.Errorf("保存附件 %s 失败: %w", attachment.Filename, err)
		}
		saved = append(saved, path)
	}

	// 有附件被保存时标记邮件为已处理
	if len(saved) > 0 {
		h.markAsProcessed(email.UID)
	}
	return saved, nil
}

// writeFileAtomic 先写临时文件再重命名，读取方不会看到写了一半的文件
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mail-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FetchSources 连接邮箱，取主题匹配的最新未读邮件并保存其中的数据源附件
func FetchSources(mailService MailService, handler *SourceAttachmentHandler, logger *storage.Logger) ([]string, error) {
	startTime := time.Now()
	logger.Info("开始检查邮箱...")

	if err := mailService.Connect(); err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer mailService.Disconnect() // 确保连接关闭

	emails, err := mailService.FetchUnreadEmails()
	if err != nil {
		return nil, fmt.Errorf("获取邮件失败: %w", err)
	}
	if len(emails) == 0 {
		logger.Info("没有新邮件")
		return nil, nil
	}

	targetEmail := filterLatestTargetEmail(emails, handler.TargetSubject)
	if targetEmail == nil {
		logger.Info("没有目标邮件", zap.String("subject", handler.TargetSubject))
		return nil, nil
	}

	saved, err := handler.Handle(targetEmail)
	if err != nil {
		return saved, err
	}
	logger.Info("邮件附件已保存",
		zap.Uint32("uid", targetEmail.UID),
		zap.Strings("files", saved),
		zap.Duration("duration", time.Since(startTime)))
	return saved, nil
}
