package swaggers

import (
	_ "embed"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed checkout.yml
var checkoutSpec []byte

// GetCheckoutSwagger loads the OpenAPI document of the checkout payment API.
func GetCheckoutSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(checkoutSpec)
	if err != nil {
		return nil, err
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, err
	}
	return doc, nil
}
