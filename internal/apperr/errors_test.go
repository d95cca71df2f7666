package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestUnsupportedConversionError_Is(t *testing.T) {
	err := fmt.Errorf("convert: %w", &UnsupportedConversionError{From: ".py", To: ".json"})
	if !errors.Is(err, ErrUnsupportedConversion) {
		t.Fatal("expected errors.Is to match ErrUnsupportedConversion")
	}
	var uc *UnsupportedConversionError
	if !errors.As(err, &uc) {
		t.Fatal("expected errors.As to find UnsupportedConversionError")
	}
	if uc.From != ".py" || uc.To != ".json" {
		t.Errorf("pair = %s -> %s", uc.From, uc.To)
	}
	if got := uc.Error(); got != "unsupported conversion: .py to .json" {
		t.Errorf("message = %q", got)
	}
}
