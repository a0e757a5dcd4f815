package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on user text.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Input       string // The text that was checked
}

// CheckForInjection uses libinjection to detect SQL injection patterns in text.
// Returns nil if no injection is detected.
//
// Example:
//
//	CheckForInjection("How many orders shipped last week?") // nil
//	CheckForInjection("'; DROP TABLE users--")              // IsSQLi == true
func CheckForInjection(text string) *InjectionCheckResult {
	if text == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(text)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Input:       text,
		}
	}

	return nil
}

// ScreenQuestion checks a natural-language question before it is placed in
// a prompt. Questions are prose, so a libinjection hit means the question is
// itself a SQL payload rather than something to answer.
func ScreenQuestion(question string) *InjectionCheckResult {
	return CheckForInjection(question)
}
