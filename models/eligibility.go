package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
)

// Donors must wait 8 weeks between whole-blood donations.
const DonationCooldownDays = 56

const (
	MinDonationUnits = 1
	MaxDonationUnits = 2
	MinIssueUnits    = 1
	MaxIssueUnits    = 10
	MinRequestUnits  = 1
	MaxRequestUnits  = 10
)

// CanDonate decides whether a donor may donate on proposedDate. Pure function
// of the donor row and the inputs; rules apply in order and the first failure
// wins. Safe to call repeatedly and concurrently.
func CanDonate(donor *Donor, proposedDate time.Time, units int) error {
	if donor == nil {
		return &utils.EligibilityError{Reason: "donor not found"}
	}
	if donor.Status != DonorStatusActive {
		return &utils.EligibilityError{
			Reason: fmt.Sprintf("donor is %s and cannot donate", donor.Status),
		}
	}
	if proposedDate.After(time.Now()) {
		return &utils.EligibilityError{Reason: "donation date cannot be in the future"}
	}
	if donor.LastDonationDate != nil {
		elapsed := wholeDaysBetween(*donor.LastDonationDate, proposedDate)
		if elapsed < DonationCooldownDays {
			remaining := DonationCooldownDays - elapsed
			return &utils.EligibilityError{
				Reason: fmt.Sprintf("donor must wait %d more days before donating again (%d-day rule)",
					remaining, DonationCooldownDays),
				RemainingDays: remaining,
			}
		}
	}
	if units < MinDonationUnits || units > MaxDonationUnits {
		return utils.NewValidationError("units_donated",
			fmt.Sprintf("units must be %d or %d", MinDonationUnits, MaxDonationUnits))
	}
	return nil
}

// CanIssue checks an issuance request against a point-in-time available
// count. The authoritative check stays inside DebitBloodStock; this exists
// for fail-fast validation and read-only what-if queries.
func CanIssue(available int, groupCode string, units int) error {
	if units < MinIssueUnits {
		return utils.NewValidationError("units_issued", "units must be at least 1")
	}
	if available < units {
		return &utils.InsufficientStockError{
			GroupCode: groupCode,
			Required:  units,
			Available: available,
		}
	}
	return nil
}

// wholeDaysBetween counts whole calendar days from a to b, ignoring the
// time-of-day component of both.
func wholeDaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}
