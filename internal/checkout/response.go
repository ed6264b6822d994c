package checkout

import (
	"github.com/luikyv/franchise-checkout/internal/pix"
	"github.com/luikyv/franchise-checkout/internal/vindi"
)

const (
	messageCreditCard = "Pagamento processado com sucesso"
	messagePIX        = "Cobrança PIX gerada com sucesso"
	warningPIXPending = "A cobrança PIX foi criada, mas o QR Code ainda não está disponível. Tente consultar novamente em alguns instantes."
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	BillID  int64  `json:"bill_id"`
	Status  string `json:"status"`

	PIX *PIXResponse `json:"pix,omitempty"`
	// Flat aliases of the PIX data kept for older checkout pages.
	PIXCode      string `json:"pix_code,omitempty"`
	PIXCopiaCola string `json:"pix_copia_cola,omitempty"`
	PIXQRCode    string `json:"pix_qr_code,omitempty"`
	PIXQRCodeURL string `json:"pix_qr_code_url,omitempty"`
	PIXQRSVG     string `json:"pix_qr_svg,omitempty"`
	PIXQRBase64  string `json:"pix_qr_base64,omitempty"`
	DueAt        string `json:"due_at,omitempty"`

	Warning   string     `json:"warning,omitempty"`
	DebugInfo *DebugInfo `json:"debug_info,omitempty"`
}

type PIXResponse struct {
	QRCode       string `json:"qr_code,omitempty"`
	QRCodeURL    string `json:"qr_code_url,omitempty"`
	QRCodeBase64 string `json:"qr_code_base64,omitempty"`
	QRCodeSVG    string `json:"qr_code_svg,omitempty"`
	PixCopiaCola string `json:"pix_copia_cola,omitempty"`
	PrintURL     string `json:"print_url,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

type DebugInfo struct {
	BillID       int64              `json:"bill_id"`
	Environment  vindi.Environment  `json:"environment"`
	BillStatus   vindi.BillStatus   `json:"bill_status"`
	ChargeStatus vindi.ChargeStatus `json:"charge_status,omitempty"`
	Attempts     int                `json:"attempts"`
}

func (st state) response(env vindi.Environment) Response {
	resp := Response{
		Success: true,
		Message: messageCreditCard,
		BillID:  st.bill.ID,
		Status:  string(st.bill.Status),
	}
	if st.req.PaymentMethod != PaymentMethodPIX {
		return resp
	}

	resp.Message = messagePIX
	resp.DueAt = firstNonEmpty(st.pix.DueAt, st.bill.DueAt)
	if !st.pix.Found() {
		resp.Warning = warningPIXPending
		info := &DebugInfo{
			BillID:      st.bill.ID,
			Environment: env,
			BillStatus:  st.bill.Status,
			Attempts:    st.pollAttempts,
		}
		if charge, ok := st.bill.FirstCharge(); ok {
			info.ChargeStatus = charge.Status
		}
		resp.DebugInfo = info
		return resp
	}

	resp.PIX = pixResponse(st.pix)
	resp.PIXCode = st.pix.Code
	resp.PIXCopiaCola = st.pix.Code
	resp.PIXQRCode = st.pix.Code
	resp.PIXQRCodeURL = st.pix.QRURL
	resp.PIXQRSVG = st.pix.QRSVG
	resp.PIXQRBase64 = st.pix.QRBase64
	return resp
}

func pixResponse(data pix.Data) *PIXResponse {
	return &PIXResponse{
		QRCode:       data.Code,
		QRCodeURL:    data.QRURL,
		QRCodeBase64: data.QRBase64,
		QRCodeSVG:    data.QRSVG,
		PixCopiaCola: data.Code,
		PrintURL:     data.PrintURL,
		ExpiresAt:    data.ExpiresAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
