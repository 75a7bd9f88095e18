package utils

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
)

// Contact verification outcomes
const (
	VerifyStatusValid      = "valid"
	VerifyStatusInvalid    = "invalid"
	VerifyStatusDisposable = "disposable"
	VerifyStatusCatchAll   = "catch-all"
	VerifyStatusUnknown    = "unknown"
)

type VerificationResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"` // valid, invalid, disposable, catch-all, unknown
	Details      string `json:"details"`
	IsReachable  bool   `json:"is_reachable"`
	IsBounceRisk bool   `json:"is_bounce_risk"`
	WHOIS        string `json:"whois,omitempty"`
}

var (
	disposableDomains = loadDisposableDomains()

	// Common email typos
	commonTypos = map[string]string{
		"gmai.com":   "gmail.com",
		"gmal.com":   "gmail.com",
		"gmail.co":   "gmail.com",
		"yaho.com":   "yahoo.com",
		"hotmai.com": "hotmail.com",
		"outlok.com": "outlook.com",
	}

	phoneRegex = regexp.MustCompile(`^\+?[0-9 .\-()]{7,20}$`)

	// Domain to MX cache
	mxCache = struct {
		sync.RWMutex
		m map[string][]*net.MX
	}{m: make(map[string][]*net.MX)}

	// SMTP connection timeout
	smtpTimeout = 15 * time.Second
)

// VerifyEmailAddress checks syntax, domain health and mailbox reachability
// for an email address. Network failures degrade the status to unknown
// rather than returning an error.
func VerifyEmailAddress(email string) (*VerificationResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &VerificationResult{
		Email:        email,
		Status:       VerifyStatusUnknown,
		IsReachable:  false,
		IsBounceRisk: true,
	}

	// 1. Basic syntax validation using checkmail
	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = VerifyStatusInvalid
		result.Details = "Invalid email format: " + err.Error()
		return result, nil
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		result.Status = VerifyStatusInvalid
		result.Details = "Invalid email format"
		return result, nil
	}

	localPart, domain := parts[0], parts[1]

	// 2. Check for common typos
	if suggestedDomain, ok := commonTypos[domain]; ok {
		result.Status = VerifyStatusInvalid
		result.Details = fmt.Sprintf("Possible typo, did you mean %s@%s?", localPart, suggestedDomain)
		return result, nil
	}

	// 3. Disposable email check
	if disposableDomains[domain] {
		result.Status = VerifyStatusDisposable
		result.Details = "Disposable email domain"
		return result, nil
	}

	// 4. DNS/MX record check with checkmail
	if err := checkmail.ValidateHost(domain); err != nil {
		result.Status = VerifyStatusInvalid
		result.Details = "Domain validation failed: " + err.Error()
		return result, nil
	}

	// 5. SMTP reachability probe
	probed := verifySMTP(domain, email)

	// 6. Add WHOIS data if available
	if whoisInfo, err := whois.Whois(domain); err == nil {
		probed.WHOIS = whoisInfo
	}

	return probed, nil
}

// VerifyPhoneNumber does a light format check on a phone number.
func VerifyPhoneNumber(phone string) bool {
	return phoneRegex.MatchString(strings.TrimSpace(phone))
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func verifySMTP(domain, email string) *VerificationResult {
	result := &VerificationResult{
		Email:        email,
		Status:       VerifyStatusUnknown,
		IsReachable:  false,
		IsBounceRisk: true,
	}

	// Get MX records with caching
	mxRecords, err := getMXRecords(domain)
	if err != nil || len(mxRecords) == 0 {
		result.Status = VerifyStatusInvalid
		result.Details = "Domain has no MX records"
		return result
	}

	// Try multiple MX servers on the standard relay port
	for _, mx := range mxRecords {
		mailServer := strings.TrimSuffix(mx.Host, ".")
		addr := fmt.Sprintf("%s:25", mailServer)
		if probed, err := checkSMTP(addr, domain, email); err == nil {
			return probed
		}
	}

	result.Details = "All verification attempts failed"
	return result
}

func getMXRecords(domain string) ([]*net.MX, error) {
	// Check cache first
	mxCache.RLock()
	if records, ok := mxCache.m[domain]; ok {
		mxCache.RUnlock()
		return records, nil
	}
	mxCache.RUnlock()

	// Lookup fresh records with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	mxRecords, err := resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	mxCache.Lock()
	mxCache.m[domain] = mxRecords
	mxCache.Unlock()

	return mxRecords, nil
}

func checkSMTP(addr, domain, email string) (*VerificationResult, error) {
	conn, err := net.DialTimeout("tcp", addr, smtpTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, domain)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// Set timeout for each SMTP command
	conn.SetDeadline(time.Now().Add(smtpTimeout))

	if err = client.Hello("verify.reachloop.io"); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       VerifyStatusUnknown,
			Details:      "HELO failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(nil); err != nil {
			return &VerificationResult{
				Email:        email,
				Status:       VerifyStatusUnknown,
				Details:      "STARTTLS failed: " + err.Error(),
				IsBounceRisk: true,
			}, nil
		}
	}

	if err = client.Mail("noreply@reachloop.io"); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       VerifyStatusUnknown,
			Details:      "MAIL FROM failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	// RCPT TO is the key reachability test
	err = client.Rcpt(email)
	if err == nil {
		return &VerificationResult{
			Email:        email,
			Status:       VerifyStatusValid,
			Details:      "Recipient accepted",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "250"):
		// Some servers return 250 even on failure
		return &VerificationResult{
			Email:        email,
			Status:       VerifyStatusCatchAll,
			Details:      "Server accepts all emails (catch-all)",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	case strings.Contains(errMsg, "550"):
		return &VerificationResult{
			Email:        email,
			Status:       VerifyStatusInvalid,
			Details:      "Mailbox doesn't exist",
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	case strings.Contains(errMsg, "421"), strings.Contains(errMsg, "450"), strings.Contains(errMsg, "451"):
		return &VerificationResult{
			Email:        email,
			Status:       VerifyStatusUnknown,
			Details:      "Temporary failure: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	default:
		return &VerificationResult{
			Email:        email,
			Status:       VerifyStatusUnknown,
			Details:      "SMTP error: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	}
}

func loadDisposableDomains() map[string]bool {
	domains := make(map[string]bool)
	for _, d := range strings.Split(disposableDomainList, "\n") {
		d = strings.TrimSpace(d)
		if d != "" {
			domains[d] = true
		}
	}
	return domains
}

const disposableDomainList = `
mailinator.com
mailinator2.com
tempmail.org
temp-mail.org
temp-mail.io
10minutemail.com
20minutemail.com
30minutemail.com
60minutemail.com
guerrillamail.com
guerrillamail.net
guerrillamail.org
guerrillamail.biz
sharklasers.com
trashmail.com
trashmail.net
trashmail.me
trash-mail.com
yopmail.com
yopmail.fr
yopmail.net
maildrop.cc
dispostable.com
fakeinbox.com
throwawaymail.com
mailnesia.com
getairmail.com
mytemp.email
tempail.com
tempinbox.com
mailmetrash.com
discard.email
mailcatch.com
tempemail.net
mintemail.com
spamgourmet.com
spam4.me
mailsac.com
harakirimail.com
anonbox.net
deadaddress.com
devnullmail.com
dodgit.com
spambox.us
kurzepost.de
wegwerfemail.de
`
