package checkout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/luikyv/franchise-checkout/internal/address"
	"github.com/luikyv/franchise-checkout/internal/errorutil"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

var validate = newValidator()

type Request struct {
	Token         string        `json:"token" validate:"required"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required,oneof=credit_card pix"`
	CardData      *CardData     `json:"cardData,omitempty"`
	CustomerData  *CustomerData `json:"customerData,omitempty"`
}

type CardData struct {
	Number      string     `json:"number" validate:"required,numeric,min=12,max=19"`
	CVV         string     `json:"cvv" validate:"required,numeric,min=3,max=4"`
	HolderName  string     `json:"holder_name" validate:"required"`
	ExpiryMonth FlexString `json:"expiry_month" validate:"required,month"`
	ExpiryYear  FlexString `json:"expiry_year" validate:"required,numeric,len=4"`
}

// Expiration formats the card expiration as MM/YYYY.
func (c CardData) Expiration() string {
	return fmt.Sprintf("%s/%s", c.ExpiryMonth, c.ExpiryYear)
}

type CustomerData struct {
	Name    string               `json:"name,omitempty"`
	Email   *openapi_types.Email `json:"email,omitempty" validate:"omitempty,email"`
	CPF     string               `json:"cpf,omitempty" validate:"omitempty,numeric,len=11"`
	Phone   string               `json:"phone,omitempty"`
	Address *Address             `json:"address,omitempty"`
}

type Address struct {
	Street       string `json:"street,omitempty"`
	Number       string `json:"number,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Zipcode      string `json:"zipcode,omitempty"`
}

func (a *Address) toAddress() address.Address {
	if a == nil {
		return address.Address{}
	}
	return address.Address{
		Street:       a.Street,
		Number:       a.Number,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		Zipcode:      a.Zipcode,
	}
}

// FlexString accepts both JSON strings and numbers.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(v))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// DecodeRequest reads, normalizes and validates a payment request.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, errorutil.Format("%w: corpo da requisição malformado", ErrInvalidRequest)
	}

	req = req.normalized()
	if err := validate.Struct(req); err != nil {
		return Request{}, validationError(err)
	}
	return req, nil
}

// normalized returns a copy with card and document fields reduced to their digits,
// a two digit month and a four digit year.
func (req Request) normalized() Request {
	req.Token = strings.TrimSpace(req.Token)
	if req.CardData != nil {
		card := *req.CardData
		card.Number = onlyDigits(card.Number)
		card.CVV = strings.TrimSpace(card.CVV)
		card.HolderName = strings.TrimSpace(card.HolderName)
		if m := string(card.ExpiryMonth); len(m) == 1 {
			card.ExpiryMonth = FlexString("0" + m)
		}
		if y := string(card.ExpiryYear); len(y) == 2 {
			card.ExpiryYear = FlexString("20" + y)
		}
		req.CardData = &card
	}
	if req.CustomerData != nil {
		customer := *req.CustomerData
		customer.Name = strings.TrimSpace(customer.Name)
		customer.CPF = onlyDigits(customer.CPF)
		req.CustomerData = &customer
	}
	return req
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
		m, err := strconv.Atoi(fl.Field().String())
		return err == nil && m >= 1 && m <= 12
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errorutil.Format("%w: %w", ErrInvalidRequest, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
	}
	return errorutil.Format("%w: campos inválidos: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
