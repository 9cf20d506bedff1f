package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
)

func activeDonor(lastDonation *time.Time) *Donor {
	return &Donor{
		ID:               1,
		Name:             "Test Donor",
		BloodGroup:       "O+",
		Status:           DonorStatusActive,
		LastDonationDate: lastDonation,
	}
}

func daysAgo(n int) *time.Time {
	d := time.Now().AddDate(0, 0, -n)
	return &d
}

func TestCanDonateFirstTime(t *testing.T) {
	if err := CanDonate(activeDonor(nil), time.Now(), 1); err != nil {
		t.Fatalf("first-time donor should be eligible, got %v", err)
	}
}

func TestCanDonateCooldownBoundary(t *testing.T) {
	// Exactly 56 whole days since last donation: eligible again.
	if err := CanDonate(activeDonor(daysAgo(DonationCooldownDays)), time.Now(), 1); err != nil {
		t.Fatalf("day %d should be eligible, got %v", DonationCooldownDays, err)
	}

	// 55 days: one more day to wait.
	err := CanDonate(activeDonor(daysAgo(DonationCooldownDays-1)), time.Now(), 1)
	var eligibilityErr *utils.EligibilityError
	if !errors.As(err, &eligibilityErr) {
		t.Fatalf("day 55 should fail eligibility, got %v", err)
	}
	if eligibilityErr.RemainingDays != 1 {
		t.Fatalf("expected 1 remaining day, got %d", eligibilityErr.RemainingDays)
	}
	if !strings.Contains(eligibilityErr.Reason, "wait 1 more day") {
		t.Fatalf("unexpected reason: %q", eligibilityErr.Reason)
	}
}

func TestCanDonateCooldownRemainingDays(t *testing.T) {
	err := CanDonate(activeDonor(daysAgo(30)), time.Now(), 1)
	var eligibilityErr *utils.EligibilityError
	if !errors.As(err, &eligibilityErr) {
		t.Fatalf("day 30 should fail eligibility, got %v", err)
	}
	if eligibilityErr.RemainingDays != 26 {
		t.Fatalf("expected 26 remaining days, got %d", eligibilityErr.RemainingDays)
	}
}

func TestCanDonateSameDayRepeat(t *testing.T) {
	err := CanDonate(activeDonor(daysAgo(0)), time.Now(), 1)
	var eligibilityErr *utils.EligibilityError
	if !errors.As(err, &eligibilityErr) {
		t.Fatalf("same-day repeat should fail eligibility, got %v", err)
	}
	if eligibilityErr.RemainingDays != DonationCooldownDays {
		t.Fatalf("expected %d remaining days, got %d", DonationCooldownDays, eligibilityErr.RemainingDays)
	}
}

func TestCanDonateInactiveDonor(t *testing.T) {
	for _, status := range []DonorStatus{DonorStatusInactive, DonorStatusDeferred} {
		donor := activeDonor(nil)
		donor.Status = status
		err := CanDonate(donor, time.Now(), 1)
		var eligibilityErr *utils.EligibilityError
		if !errors.As(err, &eligibilityErr) {
			t.Fatalf("%s donor should fail eligibility, got %v", status, err)
		}
		if !strings.Contains(eligibilityErr.Reason, string(status)) {
			t.Fatalf("reason should name the status, got %q", eligibilityErr.Reason)
		}
	}
}

func TestCanDonateNilDonor(t *testing.T) {
	var eligibilityErr *utils.EligibilityError
	if err := CanDonate(nil, time.Now(), 1); !errors.As(err, &eligibilityErr) {
		t.Fatalf("nil donor should fail eligibility, got %v", err)
	}
}

func TestCanDonateFutureDate(t *testing.T) {
	err := CanDonate(activeDonor(nil), time.Now().AddDate(0, 0, 2), 1)
	var eligibilityErr *utils.EligibilityError
	if !errors.As(err, &eligibilityErr) {
		t.Fatalf("future donation date should fail, got %v", err)
	}
}

func TestCanDonateUnitsRange(t *testing.T) {
	var validationErr *utils.ValidationError
	for _, units := range []int{0, -1, 3} {
		if err := CanDonate(activeDonor(nil), time.Now(), units); !errors.As(err, &validationErr) {
			t.Fatalf("units=%d should fail validation, got %v", units, err)
		}
	}
	for _, units := range []int{1, 2} {
		if err := CanDonate(activeDonor(nil), time.Now(), units); err != nil {
			t.Fatalf("units=%d should pass, got %v", units, err)
		}
	}
}

func TestCanDonateEligibilityBeforeUnits(t *testing.T) {
	// A deferred donor with bad units gets the eligibility failure, not the
	// units failure.
	donor := activeDonor(nil)
	donor.Status = DonorStatusDeferred
	var eligibilityErr *utils.EligibilityError
	if err := CanDonate(donor, time.Now(), 99); !errors.As(err, &eligibilityErr) {
		t.Fatalf("expected eligibility failure first, got %v", err)
	}
}

func TestCanIssue(t *testing.T) {
	if err := CanIssue(5, "O+", 5); err != nil {
		t.Fatalf("issuing exactly the available units should pass, got %v", err)
	}

	err := CanIssue(2, "AB-", 3)
	var stockErr *utils.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if stockErr.GroupCode != "AB-" || stockErr.Required != 3 || stockErr.Available != 2 {
		t.Fatalf("unexpected stock error fields: %+v", stockErr)
	}

	var validationErr *utils.ValidationError
	if err := CanIssue(5, "O+", 0); !errors.As(err, &validationErr) {
		t.Fatalf("zero units should fail validation, got %v", err)
	}
}

func TestWholeDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 1, 2, 0, 1, 0, 0, time.UTC)
	if got := wholeDaysBetween(a, b); got != 1 {
		t.Fatalf("expected 1 whole day across midnight, got %d", got)
	}
}
