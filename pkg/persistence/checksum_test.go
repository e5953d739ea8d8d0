package persistence

import (
	"errors"
	"testing"

	"github.com/juergengeck/trustcore/pkg/model"
)

func TestChecksumRoundTrip(t *testing.T) {
	payload := []byte("some slot payload")
	stored := withChecksum(payload)
	got, err := stripChecksum("slot", stored)
	if err != nil {
		t.Fatalf("stripChecksum: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	payload := []byte("some slot payload")
	stored := withChecksum(payload)
	stored[len(stored)-1] ^= 0xFF // flip every bit of the last payload byte

	if _, err := stripChecksum("slot", stored); !errors.Is(err, ErrCorruptSlot) {
		t.Fatalf("expected ErrCorruptSlot, got %v", err)
	}
}

func TestChecksumDetectsTruncation(t *testing.T) {
	if _, err := stripChecksum("slot", []byte("short")); !errors.Is(err, ErrCorruptSlot) {
		t.Fatalf("expected ErrCorruptSlot for truncated slot, got %v", err)
	}
}

func TestRightsSlotRoundTrip(t *testing.T) {
	want := model.PersonRights{MayEndorseForEverybody: true, MayEndorseForSelf: false}
	got, err := DecodeRightsSlot(encodeRights(want))
	if err != nil {
		t.Fatalf("DecodeRightsSlot: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRightsSlotRejectsMalformed(t *testing.T) {
	if _, err := DecodeRightsSlot([]byte{}); err == nil {
		t.Fatal("expected error for empty rights slot")
	}
	if _, err := DecodeRightsSlot([]byte{1, 2}); err == nil {
		t.Fatal("expected error for oversized rights slot")
	}
}
