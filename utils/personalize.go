package utils

import (
	"strings"

	"reachloop/models"
)

// Personalize fills {{placeholder}} tokens in campaign copy with contact
// fields. Unknown tokens pass through unchanged.
func Personalize(text string, contact *models.Contact) string {
	if text == "" || contact == nil {
		return text
	}

	r := strings.NewReplacer(
		"{{first_name}}", contact.FirstName,
		"{{last_name}}", contact.LastName,
		"{{full_name}}", contact.FullName(),
		"{{company}}", contact.Company,
		"{{position}}", contact.Position,
		"{{email}}", contact.Email,
	)
	return r.Replace(text)
}
