// client.go
package email

import (
	// 标准库导入
	"bytes"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	// 第三方库导入
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	// 项目内部导入
	"OrderAtlas/src/storage"
)

/******************** 常量定义 ********************/
const (
	MaxFetchMessages   = 100                // 单次最大获取邮件数量，防止内存溢出
	FetchBufferSize    = 10                 // 邮件获取通道缓冲区大小
	RecentMailDuration = 7 * 24 * time.Hour // 只查找最近一周的未读邮件
)

/******************** 接口定义 ********************/

// MailService 邮件服务核心接口
type MailService interface {
	Connect() error
	Disconnect()
	FetchUnreadEmails() ([]*Email, error)
}

/******************** 数据结构 ********************/

// Email 邮件基础数据结构
type Email struct {
	UID         uint32        // 邮件唯一标识符(IMAP UID)
	Date        time.Time     // 邮件发送时间
	From        string        // 发件人信息(已解码)
	Subject     string        // 邮件主题(已解码)
	Attachments []*Attachment // 邮件附件列表
}

// Attachment 邮件附件数据结构
type Attachment struct {
	Filename string // 附件文件名(已解码)
	Content  []byte // 附件二进制内容
}

/******************** 邮件客户端实现 ********************/

// EmailClient IMAP邮件客户端实现
type EmailClient struct {
	server    string         // IMAP服务器地址(包含端口)
	username  string         // 登录用户名
	password  string         // 登录密码/授权码
	client    *client.Client // IMAP客户端实例
	logger    *storage.Logger
	mu        sync.Mutex // 线程安全锁
	connected bool       // 连接状态标记
}

// NewEmailClient 创建邮件客户端实例，server 形如 "imap.qq.com:993"
func NewEmailClient(server, username, password string, logger *storage.Logger) *EmailClient {
	if logger == nil {
		logger = storage.Nop()
	}
	return &EmailClient{
		server:   server,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Connect 建立TLS连接并登录(线程安全)，已有连接有效时直接返回
func (s *EmailClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 连接有效性检查
	if s.connected {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		// 连接已失效则重置
		s.client.Logout()
		s.client = nil
		s.connected = false
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}

	// 登录认证
	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("登录失败: %w", err)
	}

	s.client = c
	s.connected = true
	return nil
}

// Disconnect 安全断开连接(线程安全)
func (s *EmailClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
	s.connected = false
}

// FetchUnreadEmails 获取收件箱中最近的未读邮件(线程安全)
func (s *EmailClient) FetchUnreadEmails() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, fmt.Errorf("未连接到邮件服务器")
	}

	// 选择收件箱
	if _, err := s.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("选择邮箱失败: %w", err)
	}

	// 构建搜索条件
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-RecentMailDuration)

	ids, err := s.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("搜索邮件失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// 限制获取数量，保留最新的部分
	if len(ids) > MaxFetchMessages {
		ids = ids[len(ids)-MaxFetchMessages:]
	}

	return s.fetchMessages(ids)
}

// fetchMessages 获取指定序号的邮件内容
func (s *EmailClient) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,     // 信封信息(发件人、主题等)
		imap.FetchFlags,        // 邮件标志
		imap.FetchInternalDate, // 内部日期
		imap.FetchUid,          // 唯一标识
		section.FetchItem(),    // 正文内容
	}

	// 异步获取
	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		email, err := parseEmail(msg, section)
		if err != nil {
			s.logger.Warning("解析邮件失败", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("获取邮件内容失败: %w", err)
	}
	return emails, nil
}

/******************** 邮件解析相关 ********************/

// parseEmail 解析单个邮件的头信息和附件
func parseEmail(msg *imap.Message, section *imap.BodySectionName) (*Email, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("邮件正文为空")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("创建邮件阅读器失败: %w", err)
	}

	header := mr.Header
	date, _ := header.Date() // 日期解析错误不影响后续处理
	if date.IsZero() {
		date = msg.InternalDate
	}

	email := &Email{
		UID:     msg.Uid,
		Date:    date,
		From:    decodeHeader(header.Get("From")),
		Subject: decodeHeader(header.Get("Subject")),
	}

	if err := parseEmailParts(mr, email); err != nil {
		return nil, err
	}
	return email, nil
}

// parseEmailParts 收集邮件中的附件，正文忽略
func parseEmailParts(mr *mail.Reader, email *Email) error {
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("读取邮件内容失败: %w", err)
		}

		if h, ok := p.Header.(*mail.AttachmentHeader); ok {
			if err := parseAttachment(h, p.Body, email); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseAttachment 解析单个附件
func parseAttachment(h *mail.AttachmentHeader, body io.Reader, email *Email) error {
	filename, err := h.Filename()
	if err != nil || filename == "" {
		return fmt.Errorf("无效的附件名")
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("读取附件内容失败: %w", err)
	}

	email.Attachments = append(email.Attachments, &Attachment{
		Filename: decodeHeader(filename),
		Content:  buf.Bytes(),
	})
	return nil
}

/******************** 工具函数 ********************/

// decodeHeader 解码 =?charset?encoding?encoded-text?= 形式的邮件头
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{
		CharsetReader: charsetReader,
	}

	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header // 解码失败返回原始内容
	}
	return decoded
}

// charsetReader 支持GBK/GB2312转UTF-8
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312", "gb18030":
		return transform.NewReader(input, simplifiedchinese.GB18030.NewDecoder()), nil
	default:
		return input, nil // 其他编码原样返回
	}
}

// filterLatestTargetEmail 返回主题包含关键词的最新邮件
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	var targetEmails []*Email
	for _, email := range emails {
		if strings.Contains(email.Subject, keyword) {
			targetEmails = append(targetEmails, email)
		}
	}

	if len(targetEmails) == 0 {
		return nil
	}

	// 按日期降序排序
	sort.SliceStable(targetEmails, func(i, j int) bool {
		return targetEmails[i].Date.After(targetEmails[j].Date)
	})
	return targetEmails[0]
}
