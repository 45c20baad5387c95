package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mstgnz/dukapi/provider"
)

var ErrMalformedCallback = errors.New("mpesa: malformed callback")

// ParseCallback decodes an stkCallback notification. Key lookups ignore case
// so both the documented PascalCase and camelCase relays are accepted.
func (p *MpesaProvider) ParseCallback(body []byte) (*provider.PushResult, error) {
	return parseCallback(body)
}

func parseCallback(body []byte) (*provider.PushResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	envelope, ok := object(root, "Body")
	if !ok {
		return nil, fmt.Errorf("%w: missing Body", ErrMalformedCallback)
	}
	stk, ok := object(envelope, "stkCallback")
	if !ok {
		return nil, fmt.Errorf("%w: missing stkCallback", ErrMalformedCallback)
	}

	checkoutID := str(stk, "CheckoutRequestID")
	if checkoutID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}

	rawCode, ok := field(stk, "ResultCode")
	if !ok {
		return nil, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}
	code, err := strconv.Atoi(scalar(rawCode))
	if err != nil {
		return nil, fmt.Errorf("%w: ResultCode %q", ErrMalformedCallback, scalar(rawCode))
	}

	result := &provider.PushResult{
		MerchantRequestID: str(stk, "MerchantRequestID"),
		CheckoutRequestID: checkoutID,
		ResultCode:        code,
		ResultDesc:        str(stk, "ResultDesc"),
	}

	meta, ok := object(stk, "CallbackMetadata")
	if !ok {
		return result, nil
	}
	items, _ := field(meta, "Item")
	list, _ := items.([]any)

	for _, it := range list {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		value, ok := field(item, "Value")
		if !ok {
			continue
		}
		v := scalar(value)

		switch strings.ToLower(str(item, "Name")) {
		case "mpesareceiptnumber":
			if result.Receipt == "" {
				result.Receipt = v
			}
		case "amount":
			if amt, err := decimal.NewFromString(v); err == nil {
				result.Amount = decimal.NewNullDecimal(amt)
			}
		case "phonenumber":
			result.PhoneNumber = v
		case "transactiondate":
			result.TransactionDate = v
		}
	}

	return result, nil
}

func field(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func object(m map[string]any, key string) (map[string]any, bool) {
	v, ok := field(m, key)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func str(m map[string]any, key string) string {
	v, ok := field(m, key)
	if !ok {
		return ""
	}
	return scalar(v)
}

// scalar renders a JSON string or number without float formatting
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
