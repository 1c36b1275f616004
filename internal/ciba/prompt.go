package ciba

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/xela07ax/treasury-approval-gate/internal/domain"
)

// Транспорт authority (push/SMS) пропускает очень узкий набор символов.
// Все вне букв, цифр, пробелов и +-_.,:# вырезается — включая знаки валют.
var promptDisallowed = regexp.MustCompile(`[^a-zA-Z0-9 +\-_.,:#]`)

// Схлопываем повторные пробелы, оставшиеся после вырезания
var multiSpace = regexp.MustCompile(` {2,}`)

// SanitizeBindingMessage приводит произвольную строку к виду,
// который гарантированно доставится в out-of-band канал.
func SanitizeBindingMessage(msg string) string {
	msg = promptDisallowed.ReplaceAllString(msg, "")
	msg = multiSpace.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}

// FormatBindingMessage строит короткий человекочитаемый промпт для апрувера.
// Сумма — с разделителями тысяч, без значка валюты (его вырежет транспорт).
// Например: "Approve transfer of 50,000 USD to ACC999".
func FormatBindingMessage(kind string, d domain.OperationDetails) string {
	switch kind {
	case domain.KindTransfer:
		currency := d.Currency
		if currency == "" {
			currency = "USD"
		}
		msg := fmt.Sprintf("Approve transfer of %s %s to %s",
			humanize.Commaf(d.Amount), currency, d.ToAccount)
		if d.Reason != "" {
			msg += ": " + d.Reason
		}
		return SanitizeBindingMessage(msg)
	default:
		return SanitizeBindingMessage(fmt.Sprintf("Approve %s", strings.ReplaceAll(kind, "_", " ")))
	}
}
