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
)

// SMSAdapter hands text steps to the SMS gateway configured on the
// workspace.
type SMSAdapter struct {
	GatewayURL string
	Logger     *log.Logger
	client     *fasthttp.Client
}

func NewSMSAdapter(gatewayURL string, logger *log.Logger) *SMSAdapter {
	return &SMSAdapter{
		GatewayURL: strings.TrimRight(gatewayURL, "/"),
		Logger:     logger,
		client: &fasthttp.Client{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

type smsPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsReply struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (a *SMSAdapter) Execute(ctx context.Context, req Request) (Result, error) {
	contact := req.Contact
	account := req.Account

	if strings.TrimSpace(contact.Phone) == "" {
		return Result{}, NewError(models.ErrCodeMissingRecipient, "contact %d has no phone number", contact.ID)
	}
	if account.SMSFromNumber == "" || account.SMSAPIKey == "" {
		return Result{}, NewError(models.ErrCodeAccountNotLinked, "sender account %d has no SMS gateway credentials", account.ID)
	}

	body, err := json.Marshal(smsPayload{
		From: account.SMSFromNumber,
		To:   contact.Phone,
		Body: req.Body,
	})
	if err != nil {
		return Result{}, NewError(models.ErrCodeOther, "failed to encode SMS payload: %v", err)
	}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(a.GatewayURL + "/v1/sms")
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json")
	httpReq.Header.Set("Authorization", "Bearer "+account.SMSAPIKey)
	httpReq.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = a.client.DoDeadline(httpReq, httpResp, deadline)
	} else {
		err = a.client.Do(httpReq, httpResp)
	}
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) || os.IsTimeout(err) {
			return Result{}, NewError(models.ErrCodeConnectionTimeout, "SMS gateway call timed out: %v", err)
		}
		return Result{}, NewError(models.ErrCodeOther, "SMS gateway unreachable: %v", err)
	}

	var reply smsReply
	if err := json.Unmarshal(httpResp.Body(), &reply); err != nil {
		reply = smsReply{}
	}

	switch status := httpResp.StatusCode(); {
	case status == fasthttp.StatusOK || status == fasthttp.StatusCreated || status == fasthttp.StatusAccepted:
		messageID := reply.MessageID
		if messageID == "" {
			messageID = uuid.New().String()
		}
		return Result{MessageID: messageID}, nil
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return Result{}, NewError(models.ErrCodeAccountNotLinked, "SMS gateway rejected credentials for account %d: %s", account.ID, reply.Error)
	case status == fasthttp.StatusBadRequest || status == fasthttp.StatusUnprocessableEntity:
		return Result{}, NewError(models.ErrCodeMissingRecipient, "SMS gateway rejected number %q: %s", contact.Phone, reply.Error)
	case status == fasthttp.StatusTooManyRequests:
		return Result{}, NewError(models.ErrCodeRateLimited, "SMS gateway throttled account %d: %s", account.ID, reply.Error)
	default:
		return Result{}, NewError(models.ErrCodeOther, "SMS gateway returned %d: %s", status, reply.Error)
	}
}
