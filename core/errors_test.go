package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestDeliveryErrorMapper_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		category goerrors.Category
		status   int
	}{
		{stderrors.New("core: delivery dlv_1 not found"), DeliveryErrorNotFound, goerrors.CategoryNotFound, http.StatusNotFound},
		{stderrors.New("sql: stale version conflict"), DeliveryErrorVersionConflict, goerrors.CategoryConflict, http.StatusConflict},
		{stderrors.New("core: webhook is disabled"), DeliveryErrorConfigDisabled, goerrors.CategoryOperation, http.StatusUnprocessableEntity},
		{stderrors.New("core: webhook id is required"), DeliveryErrorBadInput, goerrors.CategoryBadInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%q: expected text code %s, got %s", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Category != tc.category {
			t.Fatalf("%q: expected category %s, got %s", tc.err, tc.category, mapped.Category)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%q: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
	}
}

func TestDeliveryErrorMapper_KeepsRichErrors(t *testing.T) {
	original := VersionConflictError("dlv_9", 4)
	mapped := MapError(original)
	if mapped != original {
		t.Fatalf("expected rich error to pass through")
	}
	if mapped.Metadata["expected_version"] != 4 {
		t.Fatalf("expected version metadata, got %+v", mapped.Metadata)
	}
	if !IsVersionConflict(mapped) || IsNotFound(mapped) {
		t.Fatalf("unexpected classification")
	}
}

func TestDeliveryErrorMapper_FallsBackToInternal(t *testing.T) {
	mapped := MapError(stderrors.New("boom"))
	if mapped.Code == 0 || mapped.TextCode == "" {
		t.Fatalf("expected envelope fields on fallback, got %+v", mapped)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestNotFoundHelpers(t *testing.T) {
	if !IsNotFound(NotFoundError("dlv_1")) {
		t.Fatalf("expected delivery not found")
	}
	if !IsNotFound(WebhookNotFoundError("wh_1")) {
		t.Fatalf("expected webhook not found")
	}
	if IsNotFound(stderrors.New("not found")) {
		t.Fatalf("plain errors are not classified without mapping")
	}
}
