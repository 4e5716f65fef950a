package recon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Fingerprint derives the stable identity of a statement row from its
// content. Two imports of the same row always collapse to one stored
// transaction; a changed amount or description is a different transaction.
// The canonical form is date|amount|description|reference with the date at
// day precision and the amount at cent precision.
func Fingerprint(date time.Time, amount float64, description, reference string) string {
	canonical := fmt.Sprintf("%s|%.2f|%s|%s",
		date.Format("2006-01-02"),
		amount,
		strings.TrimSpace(description),
		strings.TrimSpace(reference),
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func (in TransactionInput) Fingerprint() string {
	return Fingerprint(in.TransactionDate, in.Amount, in.Description, in.Reference)
}
