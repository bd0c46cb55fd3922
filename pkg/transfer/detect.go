package transfer

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/grovetools/remit/pkg/banks"
)

// genericOTPFields are tried after the bank's own OTP field selector.
var genericOTPFields = []string{
	`input[type="text"][placeholder*="código"]`,
	`input[type="text"][placeholder*="OTP"]`,
	`input[type="text"][placeholder*="SMS"]`,
	`input[type="password"][placeholder*="código"]`,
	`input[name*="otp"]`,
	`input[id*="otp"]`,
	`input[id*="sms"]`,
	`input[id*="token"]`,
	`input[class*="otp"]`,
	`input[class*="sms"]`,
	`input[class*="token"]`,
	`input[placeholder*="verificação"]`,
	`input[placeholder*="verificacion"]`,
	`input[placeholder*="autenticação"]`,
	`input[placeholder*="autenticacion"]`,
	`input[name*="codigo"]`,
	`input[name*="verification"]`,
	`input[id*="verification"]`,
}

// genericValidationButtons are tried after the bank's own validation button.
var genericValidationButtons = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button[value*="Validar"]`,
	`button[value*="Confirmar"]`,
	`button[value*="Verificar"]`,
	`input[value*="Validar"]`,
	`input[value*="Confirmar"]`,
	`input[value*="Verificar"]`,
	`.btn-confirm`,
	`.btn-validate`,
	`.btn-submit`,
	`#btnValidate`,
	`#btnConfirm`,
	`#btnSubmit`,
}

// otpPhrases mark a page asking for a code when no known field matched.
var otpPhrases = []string{
	"código de verificação",
	"código sms",
	"token",
	"otp",
	"verificação",
	"autenticação",
	"código enviado",
	"verification code",
	"sms code",
}

func otpFieldSelectors(bank banks.Bank) []string {
	return withBankFirst(bank.Selectors.OTPInputField, genericOTPFields)
}

func validationButtonSelectors(bank banks.Bank) []string {
	return withBankFirst(bank.Selectors.OTPValidationButton, genericValidationButtons)
}

func withBankFirst(bankSelector string, generic []string) []string {
	out := make([]string, 0, len(generic)+1)
	if bankSelector != "" {
		out = append(out, bankSelector)
	}
	return append(out, generic...)
}

// detectOTP decides whether the confirmed form now asks for a code: the
// bank's field, then the generic fields, then known phrases in the visible
// page text.
func (f *flow) detectOTP(ctx context.Context) (bool, error) {
	sel := f.bank.Selectors
	if _, err := f.clickOptional(ctx, sel.ConfirmTransaction, 0); err != nil {
		return false, err
	}

	field, ok, err := f.waitAny(ctx, otpFieldSelectors(f.bank), f.timeouts.OTPDetect)
	if err != nil {
		return false, err
	}
	if ok {
		f.logger.WithField("selector", field).Info("OTP field found")
		return true, nil
	}

	html, err := f.page.Source(ctx)
	if err != nil {
		f.logger.WithError(err).Warn("Could not read page source for OTP phrases")
		return false, nil
	}
	if phrase, ok := findOTPPhrase(html); ok {
		f.logger.WithField("phrase", phrase).Info("OTP requirement detected from page text")
		return true, nil
	}
	f.logger.Info("No OTP requirement detected")
	return false, nil
}

// findOTPPhrase scans the visible text of an HTML document for OTP phrases.
func findOTPPhrase(html string) (string, bool) {
	text := strings.ToLower(visibleText(html))
	for _, phrase := range otpPhrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// visibleText returns the body text with scripts and styles removed.
func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}
