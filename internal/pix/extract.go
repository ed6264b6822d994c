// Package pix extracts displayable PIX payment data from gateway bills and holds the
// polling policy used while the gateway generates that data asynchronously.
package pix

import (
	"context"
	"log/slog"
	"strings"

	"github.com/luikyv/franchise-checkout/internal/vindi"
)

// Field precedence. The names vary with the gateway connector, so every alias is probed
// in order and the first usable value wins:
//  1. EMV "copia e cola" code: codeFields, then originalPathField, which may already be
//     EMV text or a link to it.
//  2. QR image: imageFields (absolute URL, path relative to the gateway host, or a base64
//     payload), then base64Fields.
//  3. Printable URL of the charge.
var (
	codeFields = []string{
		"qrcode_text",
		"emv",
		"pix_code",
		"copy_paste",
		"copia_e_cola",
		"brcode",
		"qr_code_text",
		"qr_code",
		"qrcode",
	}
	originalPathField = "qrcode_original_path"
	imageFields       = []string{
		"qrcode_path",
		"qr_code_url",
		"qrcode_url",
		"qr_code_image",
		"qrcode_image_url",
	}
	base64Fields = []string{
		"qrcode_base64",
		"qr_code_base64",
		"qrcode_image_base64",
	}
	expirationFields = []string{
		"expires_at",
		"expiration_date",
		"qrcode_expiration",
	}
)

// Data is the normalized PIX payment data of a bill.
type Data struct {
	Code      string
	QRURL     string
	QRBase64  string
	QRSVG     string
	PrintURL  string
	DueAt     string
	ExpiresAt string
}

// Found reports whether anything the payer can use to pay was extracted.
func (d Data) Found() bool {
	return d.Code != "" || d.QRURL != "" || d.QRBase64 != "" || d.PrintURL != ""
}

// Resolver turns gateway relative paths into URLs and dereferences them.
type Resolver interface {
	AssetURL(path string) string
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Fields returns the union of the gateway response fields of every charge of the bill,
// earlier charges taking precedence.
func Fields(bill vindi.Bill) vindi.ResponseFields {
	fields := vindi.ResponseFields{}
	for _, c := range bill.Charges {
		if c.LastTransaction == nil {
			continue
		}
		fields = MergeFields(fields, c.LastTransaction.GatewayResponseFields)
	}
	return fields
}

// Extract probes the bill for PIX data following the documented precedence.
// resolver may be nil, in which case links are not dereferenced.
func Extract(ctx context.Context, bill vindi.Bill, resolver Resolver) Data {
	fields := Fields(bill)
	var data Data

	for _, key := range codeFields {
		if v := strings.TrimSpace(fields.String(key)); v != "" && !isURL(v) && !isDataURI(v) {
			data.Code = v
			break
		}
	}

	if data.Code == "" {
		data.Code = codeFromOriginalPath(ctx, fields.String(originalPathField), resolver)
	}

	for _, key := range imageFields {
		v := strings.TrimSpace(fields.String(key))
		if v == "" {
			continue
		}
		if applyImage(&data, v, resolver) {
			break
		}
	}

	if data.QRBase64 == "" {
		for _, key := range base64Fields {
			if v := strings.TrimSpace(fields.String(key)); v != "" {
				data.QRBase64, data.QRSVG = fromBase64(v, data.QRSVG)
				break
			}
		}
	}

	if charge, ok := bill.FirstCharge(); ok {
		data.PrintURL = charge.PrintURL
		data.DueAt = charge.DueAt
	}
	if data.DueAt == "" {
		data.DueAt = bill.DueAt
	}

	for _, key := range expirationFields {
		if v := fields.String(key); v != "" {
			data.ExpiresAt = v
			break
		}
	}
	if data.ExpiresAt == "" {
		data.ExpiresAt = data.DueAt
	}

	return data
}

func codeFromOriginalPath(ctx context.Context, path string, resolver Resolver) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, brCodePrefix) {
		if isBRCode(path) {
			return path
		}
		slog.WarnContext(ctx, "pix original path is not a valid br code")
		return ""
	}

	if resolver == nil {
		return ""
	}

	body, err := resolver.Fetch(ctx, resolver.AssetURL(path))
	if err != nil {
		slog.WarnContext(ctx, "could not dereference pix original path", "error", err)
		return ""
	}

	if text := strings.TrimSpace(string(body)); isBRCode(text) {
		return text
	}
	return ""
}

// applyImage fills the QR image fields from v and reports whether v was usable.
func applyImage(data *Data, v string, resolver Resolver) bool {
	switch {
	case isDataURI(v) || isBase64(v):
		data.QRBase64, data.QRSVG = fromBase64(v, data.QRSVG)
		return data.QRBase64 != ""
	case isURL(v):
		data.QRURL = v
	case strings.Contains(v, "/") && !strings.ContainsAny(v, " \n"):
		if resolver == nil {
			return false
		}
		data.QRURL = resolver.AssetURL(v)
	default:
		return false
	}

	if strings.HasSuffix(strings.ToLower(data.QRURL), ".svg") {
		data.QRSVG = data.QRURL
	}
	return true
}

// fromBase64 strips an optional data URI prefix. SVG payloads are also reported as svg.
func fromBase64(v, svg string) (payload string, svgOut string) {
	svgOut = svg
	if isDataURI(v) {
		header, body, ok := strings.Cut(v, ",")
		if !ok {
			return "", svgOut
		}
		if strings.Contains(header, "image/svg+xml") {
			svgOut = v
		}
		return body, svgOut
	}
	return v, svgOut
}

func isURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

func isDataURI(v string) bool {
	return strings.HasPrefix(v, "data:")
}

func isBase64(v string) bool {
	if len(v) < 64 || strings.HasPrefix(v, "/") {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/', r == '=':
		default:
			return false
		}
	}
	return true
}
