/*
fingerprint.go - Duplicate-detection fingerprint

PURPOSE:
  Computes a stable SHA-256 hash over a claim's identifying fields:

    member id | hospital (lowercased) | receipt/invoice (uppercased)
              | total (2 decimal places) | visit-or-discharge date

  Two submissions with the same identifying fields produce the same hash;
  changing any one field changes it. The hash is unique-indexed in
  storage, so a second claim carrying the same fingerprint is rejected
  as a probable duplicate at submission time.
*/
package fund

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint computes the duplicate-detection hash for a claim. The
// hospital falls back to the notes when the details carry no provider
// name, matching how paper receipts are keyed in.
func Fingerprint(c *Claim) string {
	provider := c.Details.Provider()

	hospital := strings.ToLower(strings.TrimSpace(provider.HospitalName))
	if hospital == "" {
		hospital = strings.ToLower(strings.TrimSpace(c.Notes))
	}

	receipt := strings.ToUpper(strings.TrimSpace(provider.ReceiptNumber))
	if receipt == "" {
		receipt = strings.ToUpper(strings.TrimSpace(provider.InvoiceNumber))
	}

	date := ""
	if d := c.EventDate(); d != nil {
		date = d.Format("2006-01-02")
	}

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		c.MemberID, hospital, receipt, c.TotalClaimed.StringFixed(2), date)

	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
