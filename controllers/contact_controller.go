package controller

import (
	"encoding/csv"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"reachloop/models"
	"reachloop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{
		DB:     db,
		Logger: logger,
	}
}

// CreateContact creates a new contact with validation. A contact needs
// at least one reachable handle: email, phone or LinkedIn URL.
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Email       string `json:"email" validate:"omitempty,email"`
		FirstName   string `json:"first_name" validate:"omitempty,max=100"`
		LastName    string `json:"last_name" validate:"omitempty,max=100"`
		Company     string `json:"company" validate:"omitempty,max=200"`
		Position    string `json:"position" validate:"omitempty,max=200"`
		Phone       string `json:"phone" validate:"omitempty,max=32"`
		LinkedInURL string `json:"linkedin_url" validate:"omitempty,url"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	// Validate input
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.Email == "" && input.Phone == "" && input.LinkedInURL == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Contact needs an email, phone or LinkedIn URL", nil)
	}

	// Check if contact already exists
	if input.Email != "" {
		var existing models.Contact
		if err := cc.DB.Where("LOWER(email) = LOWER(?) AND workspace_id = ?", input.Email, user.WorkspaceID).First(&existing).Error; err == nil {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Contact with this email already exists", nil)
		}
	}

	contact := models.Contact{
		WorkspaceID: user.WorkspaceID,
		Email:       strings.ToLower(input.Email),
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Company:     input.Company,
		Position:    input.Position,
		Phone:       input.Phone,
		LinkedInURL: input.LinkedInURL,
		Status:      models.ContactStatusPending,
		Source:      "manual",
	}

	if err := cc.DB.Create(&contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

// GetContacts lists contacts with pagination and filtering
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	// Pagination
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	// Filters
	email := c.Query("email")
	company := c.Query("company")
	status := c.Query("status")

	query := cc.DB.Where("workspace_id = ?", user.WorkspaceID)
	if email != "" {
		query = query.Where("email LIKE ?", "%"+strings.ToLower(email)+"%")
	}
	if company != "" {
		query = query.Where("company LIKE ?", "%"+company+"%")
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var contacts []models.Contact
	if err := query.Offset(offset).Limit(limit).Order("id ASC").Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	var total int64
	query.Model(&models.Contact{}).Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  contacts,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetContact returns a single contact by ID
func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	contact, ok := cc.contactForRequest(c)
	if !ok {
		return nil
	}
	return c.JSON(utils.SuccessResponse(contact))
}

// UpdateContact updates contact details
func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	contact, ok := cc.contactForRequest(c)
	if !ok {
		return nil
	}

	var input struct {
		Email       string `json:"email" validate:"omitempty,email"`
		FirstName   string `json:"first_name" validate:"omitempty,max=100"`
		LastName    string `json:"last_name" validate:"omitempty,max=100"`
		Company     string `json:"company" validate:"omitempty,max=200"`
		Position    string `json:"position" validate:"omitempty,max=200"`
		Phone       string `json:"phone" validate:"omitempty,max=32"`
		LinkedInURL string `json:"linkedin_url" validate:"omitempty,url"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	// Validate input
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	// Check if email is being updated to an existing one
	if input.Email != "" && !strings.EqualFold(input.Email, contact.Email) {
		var existing models.Contact
		if err := cc.DB.Where("LOWER(email) = LOWER(?) AND workspace_id = ?", input.Email, user.WorkspaceID).First(&existing).Error; err == nil {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Contact with this email already exists", nil)
		}
		contact.Email = strings.ToLower(input.Email)
		// New address has not been verified yet
		contact.IsVerified = false
		contact.VerifiedAt = nil
	}

	// Update fields
	if input.FirstName != "" {
		contact.FirstName = input.FirstName
	}
	if input.LastName != "" {
		contact.LastName = input.LastName
	}
	if input.Company != "" {
		contact.Company = input.Company
	}
	if input.Position != "" {
		contact.Position = input.Position
	}
	if input.Phone != "" {
		contact.Phone = input.Phone
	}
	if input.LinkedInURL != "" {
		contact.LinkedInURL = input.LinkedInURL
	}

	if err := cc.DB.Save(contact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}

	return c.JSON(utils.SuccessResponse(contact))
}

// DeleteContact removes a contact together with any outreach still owed
// to them.
func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	contact, ok := cc.contactForRequest(c)
	if !ok {
		return nil
	}

	tx := cc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", tx.Error)
	}

	if err := tx.Unscoped().Where("contact_id = ?", contact.ID).Delete(&models.ScheduledStep{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact steps", err)
	}
	if err := tx.Where("contact_id = ?", contact.ID).Delete(&models.CampaignContact{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete campaign memberships", err)
	}
	if err := tx.Delete(contact).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Contact deleted"}))
}

// MarkDoNotContact flags a contact so no further outreach is scheduled
// or executed for them.
func (cc *ContactController) MarkDoNotContact(c *fiber.Ctx) error {
	contact, ok := cc.contactForRequest(c)
	if !ok {
		return nil
	}

	if err := cc.DB.Model(contact).Update("status", models.ContactStatusDoNotContact).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Contact marked do-not-contact"}))
}

// VerifyContact probes the contact's email deliverability and phone
// format, and stores the verdict on the contact.
func (cc *ContactController) VerifyContact(c *fiber.Ctx) error {
	contact, ok := cc.contactForRequest(c)
	if !ok {
		return nil
	}

	updates := map[string]interface{}{}
	response := fiber.Map{}

	if contact.Email != "" {
		result, err := utils.VerifyEmailAddress(contact.Email)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Email verification failed", err)
		}
		response["email"] = result

		updates["is_verified"] = result.Status == utils.VerifyStatusValid
		updates["bounce_risk"] = result.IsBounceRisk
		updates["verified_at"] = time.Now()
	}

	if contact.Phone != "" {
		phoneOK := utils.VerifyPhoneNumber(contact.Phone)
		response["phone_valid"] = phoneOK
		if !phoneOK && contact.Email == "" {
			updates["bounce_risk"] = true
		}
	}

	if len(updates) > 0 {
		if err := cc.DB.Model(contact).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store verification result", err)
		}
	}

	response["contact"] = contact
	return c.JSON(utils.SuccessResponse(response))
}

// ImportContacts bulk-creates contacts from an uploaded CSV file. The
// header row names the columns; email, first_name, last_name, company,
// position, phone and linkedin_url are recognized.
func (cc *ContactController) ImportContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}

	// Check file size (max 5MB)
	if file.Size > 5<<20 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 5MB)", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open file", err)
	}
	defer src.Close()

	reader := csv.NewReader(src)
	records, err := reader.ReadAll()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse CSV file", err)
	}

	if len(records) < 2 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CSV file must have at least a header and one row", nil)
	}

	header := records[0]
	rows := records[1:]

	var contacts []models.Contact
	skipped := 0

	for _, row := range rows {
		if len(row) != len(header) {
			skipped++
			continue // Skip malformed rows
		}

		data := make(map[string]string)
		for i, col := range header {
			data[strings.ToLower(strings.TrimSpace(col))] = strings.TrimSpace(row[i])
		}

		email := strings.ToLower(data["email"])
		if email == "" && data["phone"] == "" && data["linkedin_url"] == "" {
			skipped++
			continue // No reachable handle
		}

		if email != "" {
			var existing models.Contact
			err := cc.DB.Where("LOWER(email) = ? AND workspace_id = ?", email, user.WorkspaceID).First(&existing).Error
			if err == nil {
				skipped++
				continue // Already known
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check existing contacts", err)
			}
		}

		contacts = append(contacts, models.Contact{
			WorkspaceID: user.WorkspaceID,
			Email:       email,
			FirstName:   data["first_name"],
			LastName:    data["last_name"],
			Company:     data["company"],
			Position:    data["position"],
			Phone:       data["phone"],
			LinkedInURL: data["linkedin_url"],
			Status:      models.ContactStatusPending,
			Source:      "csv",
		})
	}

	if len(contacts) > 0 {
		if err := cc.DB.CreateInBatches(&contacts, 100).Error; err != nil {
			cc.Logger.Printf("Failed to import contacts: %v", err)
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to import contacts", err)
		}
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":    "Contacts imported successfully",
		"total_rows": len(rows),
		"imported":   len(contacts),
		"skipped":    skipped,
	}))
}

// ExportContacts exports the workspace's contacts to CSV
func (cc *ContactController) ExportContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contacts []models.Contact
	if err := cc.DB.Where("workspace_id = ?", user.WorkspaceID).Order("id ASC").Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", "attachment; filename=contacts_export_"+time.Now().Format("20060102")+".csv")

	writer := csv.NewWriter(c)
	defer writer.Flush()

	// Write header
	header := []string{"email", "first_name", "last_name", "company", "position", "phone", "linkedin_url", "status"}
	if err := writer.Write(header); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
	}

	// Write data
	for _, contact := range contacts {
		record := []string{
			contact.Email,
			contact.FirstName,
			contact.LastName,
			contact.Company,
			contact.Position,
			contact.Phone,
			contact.LinkedInURL,
			contact.Status,
		}
		if err := writer.Write(record); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
		}
	}

	return nil
}

func (cc *ContactController) contactForRequest(c *fiber.Ctx) (*models.Contact, bool) {
	user := c.Locals("user").(*models.User)

	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact id", nil)
		return nil, false
	}

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND workspace_id = ?", id, user.WorkspaceID).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
		} else {
			utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
		}
		return nil, false
	}
	return &contact, true
}
