package adapter

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"reachloop/models"
	"reachloop/utils"
)

// EmailAdapter delivers email steps over the sender account's SMTP
// credentials.
type EmailAdapter struct {
	AppBaseURL string
	Logger     *log.Logger
}

func NewEmailAdapter(appBaseURL string, logger *log.Logger) *EmailAdapter {
	return &EmailAdapter{AppBaseURL: appBaseURL, Logger: logger}
}

func (a *EmailAdapter) Execute(ctx context.Context, req Request) (Result, error) {
	contact := req.Contact
	account := req.Account

	if strings.TrimSpace(contact.Email) == "" {
		return Result{}, NewError(models.ErrCodeMissingRecipient, "contact %d has no email address", contact.ID)
	}
	if account.SMTPHost == "" || account.SMTPUsername == "" {
		return Result{}, NewError(models.ErrCodeAccountNotLinked, "sender account %d has no SMTP credentials", account.ID)
	}
	password, err := utils.Decrypt(account.SMTPPassword)
	if err != nil {
		return Result{}, NewError(models.ErrCodeAccountNotLinked, "failed to decrypt SMTP password for account %d: %v", account.ID, err)
	}

	messageID := uuid.New().String()
	body := req.Body
	if req.TrackOpens && a.AppBaseURL != "" {
		body = utils.InjectTracking(body, a.AppBaseURL, messageID)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", account.FromName, account.FromEmail))
	m.SetHeader("To", contact.Email)
	m.SetHeader("Subject", req.Subject)
	// Replies quote this ID in In-Reply-To, which is how the reply
	// poller ties them back to the step.
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", messageID, account.SMTPHost))
	m.SetHeader("X-Reachloop-ID", messageID)
	m.SetBody("text/html", body)

	dialer := gomail.NewDialer(account.SMTPHost, account.SMTPPort, account.SMTPUsername, password)
	dialer.TLSConfig = &tls.Config{ServerName: account.SMTPHost}
	if strings.EqualFold(account.SMTPEncryption, "ssl") {
		dialer.SSL = true
	}

	// DialAndSend has no context support, so run it on the side and let
	// the scheduler's deadline win the race.
	errCh := make(chan error, 1)
	go func() {
		errCh <- dialer.DialAndSend(m)
	}()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case err := <-errCh:
		if err != nil {
			a.Logger.Printf("SMTP send failed for step %d via account %d: %v", req.Step.ID, account.ID, err)
			return Result{}, classifySMTPError(account, err)
		}
	}

	return Result{MessageID: messageID}, nil
}

func classifySMTPError(account *models.SenderAccount, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(models.ErrCodeConnectionTimeout, "timed out talking to %s: %v", account.SMTPHost, err)
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch {
		case protoErr.Code == 421 || protoErr.Code == 450 || protoErr.Code == 451 || protoErr.Code == 452:
			return NewError(models.ErrCodeRateLimited, "%s throttled the send: %v", account.SMTPHost, err)
		case protoErr.Code == 534 || protoErr.Code == 535:
			return NewError(models.ErrCodeAccountNotLinked, "%s rejected the credentials: %v", account.SMTPHost, err)
		case protoErr.Code == 550 || protoErr.Code == 553:
			return NewError(models.ErrCodeMissingRecipient, "%s rejected the recipient: %v", account.SMTPHost, err)
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewError(models.ErrCodeConnectionTimeout, "could not reach %s: %v", account.SMTPHost, err)
	}

	return NewError(models.ErrCodeOther, "SMTP send failed: %v", err)
}
