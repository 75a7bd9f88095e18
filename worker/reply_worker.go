package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"reachloop/config"
	"reachloop/models"
	"reachloop/store"
	"reachloop/utils"
)

const replySnippetLimit = 500

// ReplyWorker polls connected email accounts over IMAP and turns
// inbound replies into engagement events. Messages are fetched with
// peek, so the mailbox's unread state is left alone; deduplication
// happens against the event log instead.
type ReplyWorker struct {
	store  *store.StepStore
	logger *log.Logger

	interval time.Duration
	now      func() time.Time
}

func NewReplyWorker(st *store.StepStore, cfg *config.Config, logger *log.Logger) *ReplyWorker {
	return &ReplyWorker{
		store:    st,
		logger:   logger,
		interval: time.Duration(cfg.ReplyPollIntervalSec) * time.Second,
		now:      time.Now,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.logger.Println("Reply worker started")

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.logger.Println("Reply worker shutting down...")
			return
		case <-ticker.C:
			rw.pollAll()
		}
	}
}

func (rw *ReplyWorker) pollAll() {
	var accounts []models.SenderAccount
	err := rw.store.DB().
		Where("type = ? AND is_active = ? AND imap_host <> ''", models.AccountTypeEmail, true).
		Find(&accounts).Error
	if err != nil {
		rw.logger.Printf("Failed to list IMAP accounts: %v", err)
		return
	}

	for i := range accounts {
		account := &accounts[i]
		if err := rw.pollAccount(account); err != nil {
			rw.logger.Printf("Reply poll failed for account %d: %v", account.ID, err)
			if noteErr := rw.store.NoteAccountError(account.ID, err.Error(), rw.now()); noteErr != nil {
				rw.logger.Printf("Could not note error on account %d: %v", account.ID, noteErr)
			}
		}
	}
}

func (rw *ReplyWorker) pollAccount(account *models.SenderAccount) error {
	password, err := utils.Decrypt(account.IMAPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt IMAP password: %v", err)
	}

	var imapClient *client.Client
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)

	switch strings.ToUpper(account.IMAPEncryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(addr, &tls.Config{ServerName: account.IMAPHost})
	case "STARTTLS":
		imapClient, err = client.Dial(addr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{ServerName: account.IMAPHost})
		}
	default:
		imapClient, err = client.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(account.IMAPUsername, password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %v", err)
	}

	mailbox := "INBOX"
	if account.IMAPMailbox != "" {
		mailbox = account.IMAPMailbox
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %v", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %v", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	for msg := range messages {
		if err := rw.handleMessage(account, msg, section); err != nil {
			rw.logger.Printf("Failed to process message %d for account %d: %v", msg.SeqNum, account.ID, err)
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %v", err)
	}
	return nil
}

func (rw *ReplyWorker) handleMessage(account *models.SenderAccount, msg *imap.Message, section *imap.BodySectionName) error {
	if msg.Envelope == nil {
		return nil
	}

	step, err := rw.matchStep(account, msg.Envelope)
	if err != nil {
		return err
	}
	if step == nil {
		// Not related to any outreach we sent.
		return nil
	}

	already, err := rw.store.HasEvent(step.ID, models.EventTypeReplied)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	occurredAt := msg.Envelope.Date
	if occurredAt.IsZero() {
		occurredAt = rw.now()
	}

	if err := rw.store.RecordEvent(&models.EngagementEvent{
		WorkspaceID: step.WorkspaceID,
		CampaignID:  step.CampaignID,
		ContactID:   step.ContactID,
		StepID:      step.ID,
		StepIndex:   step.StepIndex,
		Channel:     step.Channel,
		EventType:   models.EventTypeReplied,
		OccurredAt:  occurredAt,
		Details:     replySnippet(msg, section),
	}); err != nil {
		return fmt.Errorf("failed to record reply event: %v", err)
	}

	if err := rw.store.AdvanceContactStatus(step.ContactID, models.ContactStatusReplied); err != nil {
		rw.logger.Printf("Could not advance contact %d to replied: %v", step.ContactID, err)
	}

	rw.logger.Printf("Recorded reply to step %d (campaign %d, contact %d)", step.ID, step.CampaignID, step.ContactID)
	return nil
}

// matchStep ties an inbound message back to the outbound step it
// answers, first by In-Reply-To, then by the sender's address.
func (rw *ReplyWorker) matchStep(account *models.SenderAccount, env *imap.Envelope) (*models.ScheduledStep, error) {
	if id := messageIDFromReference(env.InReplyTo); id != "" {
		step, err := rw.store.StepByMessageID(id)
		if err == nil {
			return step, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if len(env.From) == 0 {
		return nil, nil
	}
	from := env.From[0]
	if from.MailboxName == "" || from.HostName == "" {
		return nil, nil
	}

	contact, err := rw.store.ContactByEmail(account.WorkspaceID, fmt.Sprintf("%s@%s", from.MailboxName, from.HostName))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	step, err := rw.store.LatestExecutedStepForContact(contact.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return step, nil
}

// messageIDFromReference pulls our message UUID out of an In-Reply-To
// value shaped like "<uuid@smtp.example.com>".
func messageIDFromReference(ref string) string {
	ref = strings.Trim(strings.TrimSpace(ref), "<>")
	at := strings.IndexByte(ref, '@')
	if at <= 0 {
		return ""
	}
	id := ref[:at]
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// replySnippet extracts the plain-text part of the message, trimmed to
// a storable length.
func replySnippet(msg *imap.Message, section *imap.BodySectionName) string {
	literal := msg.GetBody(section)
	if literal == nil {
		return ""
	}
	mr, err := mail.CreateReader(literal)
	if err != nil {
		return ""
	}

	var text string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok && text == "" {
			contentType, _, _ := h.ContentType()
			if strings.Contains(contentType, "text/plain") {
				if b, readErr := io.ReadAll(p.Body); readErr == nil {
					text = string(b)
				}
			}
		}
	}

	text = strings.TrimSpace(text)
	if len(text) > replySnippetLimit {
		text = text[:replySnippetLimit]
	}
	return text
}
