package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"reachloop/models"
	"reachloop/utils"
)

// LinkedInAdapter relays connection requests and messages to the
// browser-automation bridge, which drives the actual LinkedIn session.
type LinkedInAdapter struct {
	BridgeURL string
	Logger    *log.Logger
	client    *fasthttp.Client
}

func NewLinkedInAdapter(bridgeURL string, logger *log.Logger) *LinkedInAdapter {
	return &LinkedInAdapter{
		BridgeURL: strings.TrimRight(bridgeURL, "/"),
		Logger:    logger,
		client: &fasthttp.Client{
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
	}
}

type bridgePayload struct {
	SessionCookie string `json:"session_cookie"`
	ProxyURL      string `json:"proxy_url,omitempty"`
	ProfileURL    string `json:"profile_url"`
	Message       string `json:"message,omitempty"`
}

type bridgeReply struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (a *LinkedInAdapter) Execute(ctx context.Context, req Request) (Result, error) {
	contact := req.Contact
	account := req.Account

	if strings.TrimSpace(contact.LinkedInURL) == "" {
		return Result{}, NewError(models.ErrCodeMissingRecipient, "contact %d has no LinkedIn profile URL", contact.ID)
	}
	if account.LinkedInSession == "" {
		return Result{}, NewError(models.ErrCodeAccountNotLinked, "sender account %d has no LinkedIn session", account.ID)
	}
	session, err := utils.Decrypt(account.LinkedInSession)
	if err != nil {
		return Result{}, NewError(models.ErrCodeAccountNotLinked, "failed to decrypt LinkedIn session for account %d: %v", account.ID, err)
	}

	path := "/v1/messages"
	if req.Step.Channel == models.ChannelLinkedInConnection {
		path = "/v1/connection-requests"
	}
	body, err := json.Marshal(bridgePayload{
		SessionCookie: session,
		ProxyURL:      account.ProxyURL,
		ProfileURL:    contact.LinkedInURL,
		Message:       req.Body,
	})
	if err != nil {
		return Result{}, NewError(models.ErrCodeOther, "failed to encode bridge payload: %v", err)
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(a.BridgeURL + path)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = a.client.DoDeadline(httpReq, httpResp, deadline)
	} else {
		err = a.client.Do(httpReq, httpResp)
	}
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) || os.IsTimeout(err) {
			return Result{}, NewError(models.ErrCodeConnectionTimeout, "bridge call timed out: %v", err)
		}
		return Result{}, NewError(models.ErrCodeOther, "bridge unreachable: %v", err)
	}

	var reply bridgeReply
	if err := json.Unmarshal(httpResp.Body(), &reply); err != nil {
		reply = bridgeReply{}
	}

	switch status := httpResp.StatusCode(); {
	case status == fasthttp.StatusOK || status == fasthttp.StatusCreated:
		messageID := reply.MessageID
		if messageID == "" {
			messageID = uuid.New().String()
		}
		return Result{MessageID: messageID}, nil
	case status == fasthttp.StatusUnauthorized:
		return Result{}, NewError(models.ErrCodeSessionExpired, "LinkedIn session for account %d expired: %s", account.ID, reply.Error)
	case status == fasthttp.StatusForbidden:
		return Result{}, NewError(models.ErrCodeAccountNotLinked, "account %d is not linked to LinkedIn: %s", account.ID, reply.Error)
	case status == fasthttp.StatusNotFound:
		return Result{}, NewError(models.ErrCodeMissingRecipient, "LinkedIn profile not found for contact %d: %s", contact.ID, reply.Error)
	case status == fasthttp.StatusProxyAuthRequired || status == fasthttp.StatusBadGateway:
		return Result{}, NewError(models.ErrCodeProxyError, "proxy failed for account %d: %s", account.ID, reply.Error)
	case status == fasthttp.StatusTooManyRequests:
		return Result{}, NewError(models.ErrCodeRateLimited, "LinkedIn throttled account %d: %s", account.ID, reply.Error)
	default:
		return Result{}, NewError(models.ErrCodeOther, "bridge returned %d: %s", status, reply.Error)
	}
}
