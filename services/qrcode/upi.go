// Package qrsvc renders UPI payment QR codes for subscription plans.
package qrsvc

import (
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/feedesk/core/subscription"
)

const size = 256

type UPIGenerator struct{}

var _ subscription.QRGenerator = (*UPIGenerator)(nil)

func NewUPIGenerator() *UPIGenerator {
	return &UPIGenerator{}
}

// UPIURI builds the `upi://pay` deep link scanned by payment apps.
func UPIURI(upiID, payee string, amount decimal.Decimal, currency string) string {
	q := url.Values{}
	q.Set("pa", upiID)
	q.Set("pn", payee)
	q.Set("am", amount.StringFixed(2))
	q.Set("cu", currency)
	return "upi://pay?" + q.Encode()
}

// UPIQRCode returns the PNG encoding of the plan's UPI link.
func (*UPIGenerator) UPIQRCode(upiID, payee string, amount decimal.Decimal, currency string) ([]byte, error) {
	png, err := qrcode.Encode(UPIURI(upiID, payee, amount, currency), qrcode.Medium, size)
	return png, errors.Wrap(err, "qrcode.Encode()")
}
