package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfigFields(t *testing.T) {
	fields := []ConfigField{
		{Key: "shortCode", Required: true, Type: "number", MinLength: 5, MaxLength: 7},
		{Key: "environment", Required: true, Type: "string", Pattern: "^(sandbox|production)$"},
		{Key: "callbackURL", Required: false, Type: "url"},
	}

	tests := []struct {
		name    string
		config  map[string]string
		wantErr string
	}{
		{"valid", map[string]string{"shortCode": "174379", "environment": "sandbox"}, ""},
		{"valid with url", map[string]string{"shortCode": "174379", "environment": "production", "callbackURL": "https://shop.example.com/cb"}, ""},
		{"missing", map[string]string{"environment": "sandbox"}, "is missing"},
		{"not numeric", map[string]string{"shortCode": "17a379", "environment": "sandbox"}, "must be numeric"},
		{"too short", map[string]string{"shortCode": "1743", "environment": "sandbox"}, "at least 5"},
		{"bad pattern", map[string]string{"shortCode": "174379", "environment": "staging"}, "does not match"},
		{"bad url", map[string]string{"shortCode": "174379", "environment": "sandbox", "callbackURL": "/relative"}, "absolute URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfigFields("mpesa", tt.config, fields)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
