package controller

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/gofiber/fiber/v2"
	"reachloop/config"
	"reachloop/models"
	"reachloop/store"
	"reachloop/utils"
	"reachloop/warmup"
)

type CreateAccountRequest struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=email linkedin sms call"`
	IsActive *bool  `json:"is_active"`

	// Email identity and transport
	FromEmail      string `json:"from_email" validate:"required_if=Type email,omitempty,email"`
	FromName       string `json:"from_name"`
	SMTPHost       string `json:"smtp_host" validate:"required_if=Type email"`
	SMTPPort       int    `json:"smtp_port" validate:"required_if=Type email"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"smtp_password" validate:"required_if=Type email"`
	SMTPEncryption string `json:"smtp_encryption" validate:"omitempty,oneof=SSL TLS STARTTLS None"`

	// IMAP reply detection
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"imap_password"`
	IMAPEncryption string `json:"imap_encryption" validate:"omitempty,oneof=SSL TLS STARTTLS None"`
	IMAPMailbox    string `json:"imap_mailbox"`

	// LinkedIn bridge
	LinkedInSession string `json:"linkedin_session" validate:"required_if=Type linkedin"`
	ProxyURL        string `json:"proxy_url"`

	// SMS gateway
	SMSFromNumber string `json:"sms_from_number" validate:"required_if=Type sms"`
	SMSAPIKey     string `json:"sms_api_key" validate:"required_if=Type sms"`

	WarmupEnabled *bool `json:"warmup_enabled"`
}

type UpdateAccountRequest struct {
	Name            *string `json:"name"`
	IsActive        *bool   `json:"is_active"`
	FromEmail       *string `json:"from_email" validate:"omitempty,email"`
	FromName        *string `json:"from_name"`
	SMTPHost        *string `json:"smtp_host"`
	SMTPPort        *int    `json:"smtp_port"`
	SMTPUsername    *string `json:"smtp_username"`
	SMTPPassword    *string `json:"smtp_password"`
	SMTPEncryption  *string `json:"smtp_encryption" validate:"omitempty,oneof=SSL TLS STARTTLS None"`
	IMAPHost        *string `json:"imap_host"`
	IMAPPort        *int    `json:"imap_port"`
	IMAPUsername    *string `json:"imap_username"`
	IMAPPassword    *string `json:"imap_password"`
	IMAPEncryption  *string `json:"imap_encryption" validate:"omitempty,oneof=SSL TLS STARTTLS None"`
	IMAPMailbox     *string `json:"imap_mailbox"`
	LinkedInSession *string `json:"linkedin_session"`
	ProxyURL        *string `json:"proxy_url"`
	SMSFromNumber   *string `json:"sms_from_number"`
	SMSAPIKey       *string `json:"sms_api_key"`
	WarmupEnabled   *bool   `json:"warmup_enabled"`
}

type TestResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func CreateSenderAccount(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Encrypt sensitive data
	encryptedSMTPPassword, err := utils.Encrypt(req.SMTPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt SMTP password",
		})
	}

	encryptedIMAPPassword, err := utils.Encrypt(req.IMAPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt IMAP password",
		})
	}

	encryptedSession, err := utils.Encrypt(req.LinkedInSession)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt LinkedIn session",
		})
	}

	encryptedSMSKey, err := utils.Encrypt(req.SMSAPIKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt SMS API key",
		})
	}

	account := models.SenderAccount{
		WorkspaceID:     user.WorkspaceID,
		Name:            req.Name,
		Type:            req.Type,
		IsActive:        true,
		FromEmail:       req.FromEmail,
		FromName:        req.FromName,
		SMTPHost:        req.SMTPHost,
		SMTPPort:        req.SMTPPort,
		SMTPUsername:    req.SMTPUsername,
		SMTPPassword:    encryptedSMTPPassword,
		IMAPHost:        req.IMAPHost,
		IMAPPort:        req.IMAPPort,
		IMAPUsername:    req.IMAPUsername,
		IMAPPassword:    encryptedIMAPPassword,
		IMAPMailbox:     req.IMAPMailbox,
		LinkedInSession: encryptedSession,
		ProxyURL:        req.ProxyURL,
		SMSFromNumber:   req.SMSFromNumber,
		SMSAPIKey:       encryptedSMSKey,
		WarmupEnabled:   true,
	}
	if req.SMTPEncryption != "" {
		account.SMTPEncryption = req.SMTPEncryption
	}
	if req.IMAPEncryption != "" {
		account.IMAPEncryption = req.IMAPEncryption
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}
	if req.WarmupEnabled != nil {
		account.WarmupEnabled = *req.WarmupEnabled
	}

	if err := config.DB.Create(&account).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sender account",
		})
	}

	utils.LogEvent("sender_account_created", map[string]interface{}{
		"account_id":   account.ID,
		"workspace_id": account.WorkspaceID,
		"type":         account.Type,
	})

	return c.Status(fiber.StatusCreated).JSON(account)
}

func GetSenderAccounts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var accounts []models.SenderAccount
	query := config.DB.Where("workspace_id = ?", user.WorkspaceID)
	if accountType := c.Query("type"); accountType != "" {
		query = query.Where("type = ?", accountType)
	}
	if err := query.Order("created_at DESC").Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sender accounts",
		})
	}

	return c.JSON(fiber.Map{"accounts": accounts})
}

func GetSenderAccount(c *fiber.Ctx) error {
	account, ok := accountForRequest(c)
	if !ok {
		return nil
	}
	return c.JSON(account)
}

func UpdateSenderAccount(c *fiber.Ctx) error {
	account, ok := accountForRequest(c)
	if !ok {
		return nil
	}

	var req UpdateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.FromEmail != nil {
		updates["from_email"] = *req.FromEmail
	}
	if req.FromName != nil {
		updates["from_name"] = *req.FromName
	}
	if req.SMTPHost != nil {
		updates["smtp_host"] = *req.SMTPHost
	}
	if req.SMTPPort != nil {
		updates["smtp_port"] = *req.SMTPPort
	}
	if req.SMTPUsername != nil {
		updates["smtp_username"] = *req.SMTPUsername
	}
	if req.SMTPEncryption != nil {
		updates["smtp_encryption"] = *req.SMTPEncryption
	}
	if req.IMAPHost != nil {
		updates["imap_host"] = *req.IMAPHost
	}
	if req.IMAPPort != nil {
		updates["imap_port"] = *req.IMAPPort
	}
	if req.IMAPUsername != nil {
		updates["imap_username"] = *req.IMAPUsername
	}
	if req.IMAPEncryption != nil {
		updates["imap_encryption"] = *req.IMAPEncryption
	}
	if req.IMAPMailbox != nil {
		updates["imap_mailbox"] = *req.IMAPMailbox
	}
	if req.ProxyURL != nil {
		updates["proxy_url"] = *req.ProxyURL
	}
	if req.SMSFromNumber != nil {
		updates["sms_from_number"] = *req.SMSFromNumber
	}
	if req.WarmupEnabled != nil {
		updates["warmup_enabled"] = *req.WarmupEnabled
	}

	// Secrets are re-encrypted when present
	for field, value := range map[string]*string{
		"smtp_password":    req.SMTPPassword,
		"imap_password":    req.IMAPPassword,
		"linkedin_session": req.LinkedInSession,
		"sms_api_key":      req.SMSAPIKey,
	} {
		if value == nil {
			continue
		}
		encrypted, err := utils.Encrypt(*value)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to encrypt credentials",
			})
		}
		updates[field] = encrypted
	}

	if len(updates) == 0 {
		return c.JSON(account)
	}

	if err := config.DB.Model(account).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sender account",
		})
	}

	return c.JSON(account)
}

func DeleteSenderAccount(c *fiber.Ctx) error {
	account, ok := accountForRequest(c)
	if !ok {
		return nil
	}

	// Refuse while scheduled work still points at this account
	var open int64
	if err := config.DB.Model(&models.ScheduledStep{}).
		Where("sender_account_id = ? AND status IN ?", account.ID, []models.StepStatus{
			models.StepStatusPending,
			models.StepStatusApproved,
			models.StepStatusRequiresApproval,
			models.StepStatusExecuting,
			models.StepStatusDeferred,
		}).
		Count(&open).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check account usage",
		})
	}
	if open > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("Account still has %d scheduled steps; pause or reset the campaigns first", open),
		})
	}

	if err := config.DB.Delete(account).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sender account",
		})
	}

	utils.LogEvent("sender_account_deleted", map[string]interface{}{
		"account_id":   account.ID,
		"workspace_id": account.WorkspaceID,
	})

	return c.JSON(fiber.Map{"message": "Sender account deleted"})
}

// TestSenderAccount dials the account's providers with the stored
// credentials. Only email accounts are testable from the server side.
func TestSenderAccount(c *fiber.Ctx) error {
	account, ok := accountForRequest(c)
	if !ok {
		return nil
	}

	if account.Type != models.AccountTypeEmail {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Connection test is only available for email accounts",
		})
	}

	smtpResult := testSMTPConnection(account)
	response := fiber.Map{"smtp": smtpResult}

	if account.IMAPHost != "" {
		response["imap"] = testIMAPConnection(account)
	}

	return c.JSON(response)
}

// GetWarmupStatus reports where the account sits on the warmup ramp and
// how much of today's allowance is left.
func GetWarmupStatus(c *fiber.Ctx) error {
	account, ok := accountForRequest(c)
	if !ok {
		return nil
	}

	st := store.NewStepStore(config.DB)

	first, err := st.AccountFirstAction(account.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load warmup status",
		})
	}

	now := time.Now()
	var firstAt time.Time
	if first != nil {
		firstAt = *first
	}
	day := warmup.Day(firstAt, now)
	limit, err := warmup.DailyLimit(day)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute warmup limit",
		})
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sent, err := st.CountExecutedSince(account.ID, dayStart, now)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load warmup status",
		})
	}

	remaining := limit - int(sent)
	if remaining < 0 {
		remaining = 0
	}

	return c.JSON(fiber.Map{
		"account_id":      account.ID,
		"warmup_enabled":  account.WarmupEnabled,
		"warmup_day":      day,
		"daily_cap":       limit,
		"sent_today":      sent,
		"remaining_today": remaining,
		"first_action_at": first,
	})
}

// accountForRequest loads the sender account named by the :id route
// param, scoped to the caller's workspace.
func accountForRequest(c *fiber.Ctx) (*models.SenderAccount, bool) {
	user := c.Locals("user").(*models.User)

	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid account id"})
		return nil, false
	}

	var account models.SenderAccount
	if err := config.DB.Where("id = ? AND workspace_id = ?", id, user.WorkspaceID).First(&account).Error; err != nil {
		c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Sender account not found"})
		return nil, false
	}
	return &account, true
}

func testSMTPConnection(account *models.SenderAccount) TestResult {
	result := TestResult{Success: false}

	logContext := map[string]interface{}{
		"smtp_host": account.SMTPHost,
		"smtp_port": account.SMTPPort,
		"username":  account.SMTPUsername,
	}

	password, err := utils.Decrypt(account.SMTPPassword)
	if err != nil {
		result.Error = fmt.Sprintf("Failed to decrypt SMTP password: %v", err)
		utils.LogError("smtp_password_decrypt", err, logContext)
		return result
	}

	smtpAddr := fmt.Sprintf("%s:%d", account.SMTPHost, account.SMTPPort)

	var auth smtp.Auth
	if account.SMTPUsername != "" && password != "" {
		auth = smtp.PlainAuth("", account.SMTPUsername, password, account.SMTPHost)
	}

	switch strings.ToUpper(account.SMTPEncryption) {
	case "SSL", "TLS":
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
			ServerName:         account.SMTPHost,
		}

		conn, err := tls.Dial("tcp", smtpAddr, tlsConfig)
		if err != nil {
			result.Error = fmt.Sprintf("Failed to establish TLS connection: %v", err)
			utils.LogError("smtp_tls_connection", err, logContext)
			return result
		}
		defer conn.Close()

		smtpClient, err := smtp.NewClient(conn, account.SMTPHost)
		if err != nil {
			result.Error = fmt.Sprintf("Failed to create SMTP client: %v", err)
			utils.LogError("smtp_client_creation", err, logContext)
			return result
		}
		defer smtpClient.Close()

		if auth != nil {
			if err := smtpClient.Auth(auth); err != nil {
				result.Error = fmt.Sprintf("SMTP authentication failed: %v", err)
				utils.LogError("smtp_authentication", err, logContext)
				return result
			}
		}
		result.Success = true

	case "STARTTLS":
		smtpClient, err := smtp.Dial(smtpAddr)
		if err != nil {
			result.Error = fmt.Sprintf("Failed to connect to SMTP server: %v", err)
			utils.LogError("smtp_connection", err, logContext)
			return result
		}
		defer smtpClient.Close()

		if err := smtpClient.StartTLS(&tls.Config{
			InsecureSkipVerify: false,
			ServerName:         account.SMTPHost,
		}); err != nil {
			result.Error = fmt.Sprintf("Failed to start TLS: %v", err)
			utils.LogError("smtp_starttls", err, logContext)
			return result
		}

		if auth != nil {
			if err := smtpClient.Auth(auth); err != nil {
				result.Error = fmt.Sprintf("SMTP authentication failed: %v", err)
				utils.LogError("smtp_authentication", err, logContext)
				return result
			}
		}
		result.Success = true

	default:
		smtpClient, err := smtp.Dial(smtpAddr)
		if err != nil {
			result.Error = fmt.Sprintf("Failed to connect to SMTP server: %v", err)
			utils.LogError("smtp_connection", err, logContext)
			return result
		}
		defer smtpClient.Close()

		if auth != nil {
			if err := smtpClient.Auth(auth); err != nil {
				result.Error = fmt.Sprintf("SMTP authentication failed: %v", err)
				utils.LogError("smtp_authentication", err, logContext)
				return result
			}
		}
		result.Success = true
	}

	utils.LogEvent("smtp_test_success", logContext)
	return result
}

func testIMAPConnection(account *models.SenderAccount) TestResult {
	result := TestResult{Success: false}

	logContext := map[string]interface{}{
		"imap_host": account.IMAPHost,
		"imap_port": account.IMAPPort,
		"username":  account.IMAPUsername,
	}

	imapPassword, err := utils.Decrypt(account.IMAPPassword)
	if err != nil {
		result.Error = fmt.Sprintf("Failed to decrypt IMAP password: %v", err)
		utils.LogError("imap_password_decrypt", err, logContext)
		return result
	}

	imapAddr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	var imapClient *client.Client

	switch strings.ToUpper(account.IMAPEncryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(imapAddr, &tls.Config{
			InsecureSkipVerify: false,
			ServerName:         account.IMAPHost,
		})
	case "STARTTLS":
		imapClient, err = client.Dial(imapAddr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{
				InsecureSkipVerify: false,
				ServerName:         account.IMAPHost,
			})
		}
	default:
		imapClient, err = client.Dial(imapAddr)
	}

	if err != nil {
		result.Error = fmt.Sprintf("Failed to connect to IMAP server: %v", err)
		utils.LogError("imap_connection", err, logContext)
		return result
	}
	defer imapClient.Logout()

	// Set timeout for login
	imapClient.Timeout = 10 * time.Second

	if err := imapClient.Login(account.IMAPUsername, imapPassword); err != nil {
		result.Error = fmt.Sprintf("IMAP authentication failed: %v", err)
		utils.LogError("imap_authentication", err, logContext)
		return result
	}

	if account.IMAPMailbox != "" {
		if _, err := imapClient.Select(account.IMAPMailbox, true); err != nil {
			result.Error = fmt.Sprintf("Failed to select mailbox: %v", err)
			utils.LogError("imap_mailbox_select", err, logContext)
			return result
		}
	}

	result.Success = true
	utils.LogEvent("imap_test_success", logContext)
	return result
}
