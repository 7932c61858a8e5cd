package validator

import (
	"errors"
	"testing"

	"github.com/GetStream/party-engagement/party"
)

type testRequest struct {
	UserID  string `validate:"required"`
	Level   int    `validate:"gte=1,lte=5"`
	Message string `validate:"max=10"`
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		input   any
		wantErr bool
		fields  []string
	}{
		{
			name:  "Valid struct",
			input: testRequest{UserID: "u1", Level: 3},
		},
		{
			name:    "Missing required fields",
			input:   testRequest{Level: 3},
			wantErr: true,
			fields:  []string{"UserID"},
		},
		{
			name:    "Level out of range",
			input:   testRequest{UserID: "u1", Level: 6},
			wantErr: true,
			fields:  []string{"Level"},
		},
		{
			name:    "Several fields",
			input:   testRequest{Level: 0, Message: "this message is too long"},
			wantErr: true,
			fields:  []string{"UserID", "Level", "Message"},
		},
		{
			name:  "StatusUpdate model",
			input: party.StatusUpdate{UserID: "u1", Type: party.StatusVibe, Level: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateStruct(tt.input)

			if tt.wantErr && len(errs) == 0 {
				t.Fatal("ValidateStruct() expected errors but got none")
			}
			if !tt.wantErr && len(errs) > 0 {
				t.Fatalf("ValidateStruct() got unexpected errors: %v", errs)
			}

			found := make(map[string]bool)
			for _, err := range errs {
				found[err.Field] = true
			}
			for _, field := range tt.fields {
				if !found[field] {
					t.Errorf("Expected validation error for field %s, but got none", field)
				}
			}
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		value   any
		tag     string
		wantErr bool
	}{
		{name: "Level in range", value: 4, tag: "gte=1,lte=5"},
		{name: "Level too high", value: 9, tag: "gte=1,lte=5", wantErr: true},
		{name: "Required present", value: "value", tag: "required"},
		{name: "Required empty", value: "", tag: "required", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.Validate(tt.value, tt.tag)

			if tt.wantErr && len(errs) == 0 {
				t.Error("Validate() expected errors but got none")
			}
			if !tt.wantErr && len(errs) > 0 {
				t.Errorf("Validate() got unexpected errors: %v", errs)
			}
		})
	}
}

func TestValidator_Check(t *testing.T) {
	v := New()

	if err := v.Check(testRequest{UserID: "u1", Level: 1}); err != nil {
		t.Fatalf("Check() = %v, want nil", err)
	}

	err := v.Check(testRequest{Level: 7})
	if !errors.Is(err, party.ErrValidation) {
		t.Fatalf("Check() = %v, want ErrValidation", err)
	}
	var verr *party.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Check() = %T, want *party.ValidationError", err)
	}
}

func TestNew(t *testing.T) {
	v := New()
	if v == nil || v.cli == nil {
		t.Error("New() returned invalid validator")
	}
}
