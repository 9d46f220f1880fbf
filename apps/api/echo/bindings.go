package echoapi

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
)

const receiptField = "receipt"

// receipt is an uploaded file bound from a multipart form. Close must be called once handled.
type receipt struct {
	core.File
	src multipart.File
}

func (r receipt) Close() {
	if r.src != nil {
		_ = r.src.Close()
	}
}

// bindReceipt opens the `receipt` form file. A missing file yields an empty receipt so the services
// report it along with the other field errors.
func bindReceipt(ctx echo.Context) (receipt, error) {
	fh, err := ctx.FormFile(receiptField)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return receipt{}, nil
		}
		return receipt{}, errors.Wrap(err, "reading receipt")
	}
	src, err := fh.Open()
	if err != nil {
		return receipt{}, errors.Wrap(err, "opening receipt")
	}
	return receipt{
		File: core.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Content:     src,
		},
		src: src,
	}, nil
}

// formInt parses an integer form value; an absent value is 0.
func formInt(ctx echo.Context, field string) (int, error) {
	val := strings.TrimSpace(ctx.FormValue(field))
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, core.NewFieldError(field, field+" must be an integer")
	}
	return n, nil
}

// formDecimal parses a decimal form value; an absent value is zero.
func formDecimal(ctx echo.Context, field string) (decimal.Decimal, error) {
	val := strings.TrimSpace(ctx.FormValue(field))
	if val == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, core.NewFieldError(field, field+" must be a decimal number")
	}
	return d, nil
}
