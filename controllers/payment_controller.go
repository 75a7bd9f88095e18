package controller

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"gorm.io/gorm"
	"reachloop/config"
	"reachloop/models"
	"reachloop/utils"
)

func InitStripe() {
	stripe.Key = config.AppConfig.StripeSecretKey
}

type PurchaseCreditsRequest struct {
	Package string `json:"package" validate:"required"`
}

// ListCreditPackages returns the purchasable credit packages.
func ListCreditPackages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"packages": models.CreditPackages})
}

// GetCreditBalance reports the workspace's remaining send credits and
// recent purchases.
func GetCreditBalance(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var workspace models.Workspace
	if err := config.DB.First(&workspace, user.WorkspaceID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load workspace",
		})
	}

	var transactions []models.CreditTransaction
	if err := config.DB.Where("workspace_id = ?", user.WorkspaceID).
		Order("created_at DESC").Limit(20).Find(&transactions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load transactions",
		})
	}

	return c.JSON(fiber.Map{
		"send_credits":     workspace.SendCredits,
		"credits_consumed": workspace.CreditsConsumed,
		"transactions":     transactions,
	})
}

// CreatePaymentIntent creates a Stripe Payment Intent for a credit package
func CreatePaymentIntent(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req PurchaseCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		config.DB.Logger.Error(c.Context(), "Failed to parse request body", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	pkg, ok := models.PackageByName(req.Package)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown credit package",
		})
	}

	var workspace models.Workspace
	if err := config.DB.First(&workspace, user.WorkspaceID).Error; err != nil {
		config.DB.Logger.Error(c.Context(), "Workspace not found", "workspace_id", user.WorkspaceID)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Workspace not found",
		})
	}

	// Create or get Stripe customer
	customerID, err := getOrCreateStripeCustomer(&workspace, user)
	if err != nil {
		config.DB.Logger.Error(c.Context(), "Failed to create Stripe customer", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process payment",
		})
	}

	// Create Payment Intent
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(pkg.AmountCents)),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		Customer: stripe.String(customerID),
		Metadata: map[string]string{
			"workspace_id": strconv.Itoa(int(workspace.ID)),
			"package":      pkg.Name,
		},
		Description: stripe.String("Purchase of " + pkg.Name + " credit package"),
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		config.DB.Logger.Error(c.Context(), "Failed to create payment intent", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process payment",
		})
	}

	// Create transaction record
	transaction := models.CreditTransaction{
		WorkspaceID:           workspace.ID,
		UserID:                user.ID,
		Credits:               pkg.Credits,
		AmountCents:           pkg.AmountCents,
		Currency:              "usd",
		Status:                "pending",
		StripePaymentIntentID: pi.ID,
		Description:           "Purchase of " + pkg.Name + " credit package",
	}

	if err := config.DB.Create(&transaction).Error; err != nil {
		config.DB.Logger.Error(c.Context(), "Failed to create transaction", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process transaction",
		})
	}

	return c.JSON(fiber.Map{
		"clientSecret":   pi.ClientSecret,
		"transaction_id": transaction.ID,
		"amount":         pkg.AmountCents,
		"credits":        pkg.Credits,
		"currency":       "usd",
	})
}

// HandlePaymentWebhook handles Stripe webhook events
func HandlePaymentWebhook(c *fiber.Ctx) error {
	event, err := utils.ConstructStripeEvent(c)
	if err != nil {
		config.DB.Logger.Error(c.Context(), "Failed to construct Stripe event", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var paymentIntent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
			config.DB.Logger.Error(c.Context(), "Failed to parse payment intent", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Error parsing payment intent",
			})
		}
		return handlePaymentIntentSucceeded(c, &paymentIntent)

	case "payment_intent.payment_failed":
		var paymentIntent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
			config.DB.Logger.Error(c.Context(), "Failed to parse payment intent", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Error parsing payment intent",
			})
		}
		return handlePaymentIntentFailed(c, &paymentIntent)

	default:
		return c.SendStatus(fiber.StatusOK)
	}
}

// handlePaymentIntentSucceeded marks the transaction complete and grants
// the purchased credits. Stripe retries webhooks, so a transaction that
// is already completed grants nothing again.
func handlePaymentIntentSucceeded(c *fiber.Ctx, pi *stripe.PaymentIntent) error {
	var transaction models.CreditTransaction
	if err := config.DB.Where("stripe_payment_intent_id = ?", pi.ID).First(&transaction).Error; err != nil {
		config.DB.Logger.Error(c.Context(), "Transaction not found", "payment_intent_id", pi.ID)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transaction not found",
		})
	}

	if transaction.Status == "completed" {
		return c.SendStatus(fiber.StatusOK)
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CreditTransaction{}).
			Where("id = ? AND status <> ?", transaction.ID, "completed").
			Update("status", "completed")
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another delivery already granted the credits
			return nil
		}
		return tx.Model(&models.Workspace{}).
			Where("id = ?", transaction.WorkspaceID).
			Update("send_credits", gorm.Expr("send_credits + ?", transaction.Credits)).Error
	})
	if err != nil {
		config.DB.Logger.Error(c.Context(), "Failed to complete transaction", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update transaction",
		})
	}

	utils.LogEvent("credits_purchased", map[string]interface{}{
		"workspace_id": transaction.WorkspaceID,
		"credits":      transaction.Credits,
		"amount_cents": transaction.AmountCents,
	})

	return c.SendStatus(fiber.StatusOK)
}

// handlePaymentIntentFailed processes failed payments
func handlePaymentIntentFailed(c *fiber.Ctx, pi *stripe.PaymentIntent) error {
	var transaction models.CreditTransaction
	if err := config.DB.Where("stripe_payment_intent_id = ?", pi.ID).First(&transaction).Error; err != nil {
		config.DB.Logger.Error(c.Context(), "Transaction not found", "payment_intent_id", pi.ID)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transaction not found",
		})
	}

	updates := map[string]interface{}{"status": "failed"}
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		updates["description"] = "Payment failed: " + pi.LastPaymentError.Msg
	}

	if err := config.DB.Model(&transaction).Updates(updates).Error; err != nil {
		config.DB.Logger.Error(c.Context(), "Failed to update transaction", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update transaction",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

// getOrCreateStripeCustomer gets or creates a Stripe customer for the
// workspace
func getOrCreateStripeCustomer(workspace *models.Workspace, user *models.User) (string, error) {
	if workspace.StripeCustomerID != nil {
		return *workspace.StripeCustomerID, nil
	}

	var name string
	if user.Name != nil {
		name = *user.Name
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(name),
		Metadata: map[string]string{
			"workspace_id": strconv.Itoa(int(workspace.ID)),
		},
	}

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	workspace.StripeCustomerID = &cust.ID
	if err := config.DB.Save(workspace).Error; err != nil {
		return "", err
	}

	return cust.ID, nil
}
