package pix

import "github.com/luikyv/franchise-checkout/internal/vindi"

// MergeFields returns a new map with every key of dst plus the keys of src that dst
// does not have yet. Values already present are never overwritten.
func MergeFields(dst, src vindi.ResponseFields) vindi.ResponseFields {
	out := make(vindi.ResponseFields, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if existing, ok := out[k]; ok && !isEmpty(existing) {
			continue
		}
		out[k] = v
	}
	return out
}

// WithFields returns a copy of bill whose first charge carries fields merged over its
// own response fields. Keys in fields take precedence. The original bill is left untouched.
func WithFields(bill vindi.Bill, fields vindi.ResponseFields) vindi.Bill {
	if len(fields) == 0 || len(bill.Charges) == 0 {
		return bill
	}

	charges := make([]vindi.Charge, len(bill.Charges))
	copy(charges, bill.Charges)

	first := charges[0]
	var tx vindi.Transaction
	if first.LastTransaction != nil {
		tx = *first.LastTransaction
	}
	tx.GatewayResponseFields = MergeFields(fields, tx.GatewayResponseFields)
	first.LastTransaction = &tx
	charges[0] = first

	bill.Charges = charges
	return bill
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
