package services_test

import (
	"errors"
	"strings"
	"testing"

	"seebeck/internal/services"
)

func TestWrapIncludesStageDetail(t *testing.T) {
	base := errors.New("serial port closed")
	err := services.Wrap(services.ErrInstrument, "acquire", "read channels", "Rig read failed", base)
	if !errors.Is(err, services.ErrInstrument) {
		t.Fatalf("expected instrument marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to survive")
	}
	for _, fragment := range []string{"acquire", "read channels", "Rig read failed"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error, got %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "analyze", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestNeedsReview(t *testing.T) {
	cases := []struct {
		name   string
		marker error
		want   bool
	}{
		{"validation", services.ErrValidation, true},
		{"configuration", services.ErrConfiguration, true},
		{"not found", services.ErrNotFound, true},
		{"instrument", services.ErrInstrument, false},
		{"timeout", services.ErrTimeout, true},
		{"transient", services.ErrTransient, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := services.Wrap(tc.marker, "stage", "op", "", nil)
			if got := services.NeedsReview(err); got != tc.want {
				t.Fatalf("NeedsReview(%v) = %v, want %v", tc.marker, got, tc.want)
			}
		})
	}
}
