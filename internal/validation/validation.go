// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// IsValidEmail проверяет базовую корректность адреса электронной почты:
// ровно один символ @, непустая локальная часть и домен с точкой.
func IsValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t") {
		return false
	}

	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}

	domain := email[at+1:]
	if domain == "" {
		return false
	}

	dot := strings.Index(domain, ".")
	if dot <= 0 || strings.HasSuffix(domain, ".") {
		return false
	}

	return true
}
