package models_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/models"
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"bitbucket.org/mmhealthfocus/bbms_backend/workflow"
	"github.com/shopspring/decimal"
)

func seedDonorWithStock(t *testing.T, ctx context.Context, name, phone, group string, units int) {
	t.Helper()
	donor, err := models.CreateDonor(ctx, &models.NewDonor{
		Name:       name,
		Age:        30,
		Gender:     "Male",
		BloodGroup: group,
		Phone:      phone,
		Weight:     decimal.NewFromInt(70),
	})
	if err != nil {
		t.Fatalf("CreateDonor: %v", err)
	}
	if _, err := workflow.RecordDonation(ctx, &models.NewDonation{
		DonorId:      donor.ID,
		UnitsDonated: units,
	}); err != nil {
		t.Fatalf("RecordDonation: %v", err)
	}
}

func TestRequestApproveIssueLifecycle(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	hospital, err := models.CreateHospital(ctx, &models.NewHospital{Name: "General Hospital"})
	if err != nil {
		t.Fatalf("CreateHospital: %v", err)
	}
	patient, err := models.CreatePatient(ctx, &models.NewPatient{
		Name:       "Su Su",
		Age:        45,
		Gender:     "Female",
		BloodGroup: "AB-",
		HospitalId: &hospital.ID,
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	request, err := models.CreateBloodRequest(ctx, &models.NewBloodRequest{
		PatientId:     patient.ID,
		HospitalId:    &hospital.ID,
		BloodGroup:    "AB-",
		UnitsRequired: 3,
		Priority:      "Critical",
	})
	if err != nil {
		t.Fatalf("CreateBloodRequest: %v", err)
	}
	if request.Status != models.RequestStatusPending {
		t.Fatalf("new request must be Pending, got %s", request.Status)
	}

	// Critical submission raises a dashboard notification.
	count, err := models.GetUnreadNotificationCount(ctx)
	if err != nil {
		t.Fatalf("GetUnreadNotificationCount: %v", err)
	}
	if count < 1 {
		t.Fatal("critical request should raise a notification")
	}

	// Empty shelf: approval is refused but the request stays Pending.
	_, err = models.ApproveBloodRequest(ctx, request.ID)
	var stockErr *utils.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("approval with empty stock should fail, got %v", err)
	}
	fresh, err := models.GetBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetBloodRequest: %v", err)
	}
	if fresh.Status != models.RequestStatusPending {
		t.Fatalf("failed approval must not move status, got %s", fresh.Status)
	}

	seedDonorWithStock(t, ctx, "Donor One", "9876500001", "AB-", 2)
	seedDonorWithStock(t, ctx, "Donor Two", "9876500002", "AB-", 2)

	approved, err := models.ApproveBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("ApproveBloodRequest: %v", err)
	}
	if approved.Status != models.RequestStatusApproved || approved.ApprovedBy == nil {
		t.Fatalf("unexpected approved request: %+v", approved)
	}

	// Approving again acts on a stale view.
	var stateErr *utils.InvalidStateError
	if _, err := models.ApproveBloodRequest(ctx, request.ID); !errors.As(err, &stateErr) {
		t.Fatalf("second approval should fail with invalid state, got %v", err)
	}

	issue, err := workflow.IssueBlood(ctx, &models.NewBloodIssue{
		PatientId:   patient.ID,
		HospitalId:  &hospital.ID,
		RequestId:   &request.ID,
		BloodGroup:  "AB-",
		UnitsIssued: 3,
		IssuedTo:    "Ward 5",
	})
	if err != nil {
		t.Fatalf("IssueBlood: %v", err)
	}
	if issue.UnitsIssued != 3 {
		t.Fatalf("expected 3 units issued, got %d", issue.UnitsIssued)
	}

	fresh, err = models.GetBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetBloodRequest: %v", err)
	}
	if fresh.Status != models.RequestStatusFulfilled {
		t.Fatalf("issued request must be Fulfilled, got %s", fresh.Status)
	}

	stock, err := models.GetBloodStock(ctx, "AB-")
	if err != nil {
		t.Fatalf("GetBloodStock: %v", err)
	}
	if stock.UnitsAvailable != 1 {
		t.Fatalf("expected 1 unit left, got %d", stock.UnitsAvailable)
	}

	// A fulfilled request cannot back another issuance.
	if _, err := workflow.IssueBlood(ctx, &models.NewBloodIssue{
		PatientId:   patient.ID,
		RequestId:   &request.ID,
		BloodGroup:  "AB-",
		UnitsIssued: 1,
		IssuedTo:    "Ward 5",
	}); !errors.As(err, &stateErr) {
		t.Fatalf("issuing against fulfilled request should fail, got %v", err)
	}
}

func TestIssueRequiresRecipientName(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	patient, err := models.CreatePatient(ctx, &models.NewPatient{
		Name:       "Recipient Patient",
		Age:        40,
		Gender:     "Male",
		BloodGroup: "A+",
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	seedDonorWithStock(t, ctx, "Recipient Donor", "9876500004", "A+", 2)

	for _, issuedTo := range []string{"", "   "} {
		_, err := workflow.IssueBlood(ctx, &models.NewBloodIssue{
			PatientId:   patient.ID,
			BloodGroup:  "A+",
			UnitsIssued: 1,
			IssuedTo:    issuedTo,
		})
		var validationErr *utils.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("issue with recipient %q should fail validation, got %v", issuedTo, err)
		}
		if validationErr.Field != "issued_to" {
			t.Fatalf("expected issued_to validation error, got field %q", validationErr.Field)
		}
	}

	// Nothing moved.
	stock, err := models.GetBloodStock(ctx, "A+")
	if err != nil {
		t.Fatalf("GetBloodStock: %v", err)
	}
	if stock.UnitsAvailable != 2 {
		t.Fatalf("refused issue must not move stock, got %d", stock.UnitsAvailable)
	}
}

func TestIssueMismatchIsAudited(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	patient, err := models.CreatePatient(ctx, &models.NewPatient{
		Name:       "Mismatch Patient",
		Age:        33,
		Gender:     "Female",
		BloodGroup: "AB+",
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	seedDonorWithStock(t, ctx, "Mismatch Donor", "9876500005", "AB+", 2)

	request, err := models.CreateBloodRequest(ctx, &models.NewBloodRequest{
		PatientId:     patient.ID,
		BloodGroup:    "AB+",
		UnitsRequired: 2,
	})
	if err != nil {
		t.Fatalf("CreateBloodRequest: %v", err)
	}
	if _, err := models.ApproveBloodRequest(ctx, request.ID); err != nil {
		t.Fatalf("ApproveBloodRequest: %v", err)
	}

	// Fewer units than approved: the issue values win, the deviation is
	// written to the audit trail in the same transaction.
	issue, err := workflow.IssueBlood(ctx, &models.NewBloodIssue{
		PatientId:   patient.ID,
		RequestId:   &request.ID,
		BloodGroup:  "AB+",
		UnitsIssued: 1,
		IssuedTo:    "ICU",
	})
	if err != nil {
		t.Fatalf("IssueBlood: %v", err)
	}
	if issue.UnitsIssued != 1 {
		t.Fatalf("expected 1 unit issued, got %d", issue.UnitsIssued)
	}

	fresh, err := models.GetBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetBloodRequest: %v", err)
	}
	if fresh.Status != models.RequestStatusFulfilled {
		t.Fatalf("mismatched issue must still fulfill, got %s", fresh.Status)
	}

	action := "issue_mismatch"
	logs, err := models.GetActivityLogs(ctx, &action, nil, nil, 10)
	if err != nil {
		t.Fatalf("GetActivityLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 mismatch audit entry, got %d", len(logs))
	}
}

func TestSequentialIssuesReuseGroupLock(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	patient, err := models.CreatePatient(ctx, &models.NewPatient{
		Name:       "Repeat Patient",
		Age:        29,
		Gender:     "Other",
		BloodGroup: "B+",
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	seedDonorWithStock(t, ctx, "Repeat Donor One", "9876500006", "B+", 2)
	seedDonorWithStock(t, ctx, "Repeat Donor Two", "9876500007", "B+", 2)

	// Back-to-back issuances for the same group must each acquire and release
	// the per-group advisory lock promptly, regardless of which pooled
	// connection serves them.
	for i := 0; i < 4; i++ {
		start := time.Now()
		if _, err := workflow.IssueBlood(ctx, &models.NewBloodIssue{
			PatientId:   patient.ID,
			BloodGroup:  "B+",
			UnitsIssued: 1,
			IssuedTo:    "Ward 2",
		}); err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		if elapsed := time.Since(start); elapsed > 10*time.Second {
			t.Fatalf("issue %d blocked for %s waiting on the group lock", i, elapsed)
		}
	}

	stock, err := models.GetBloodStock(ctx, "B+")
	if err != nil {
		t.Fatalf("GetBloodStock: %v", err)
	}
	if stock.UnitsAvailable != 0 {
		t.Fatalf("expected 0 units left, got %d", stock.UnitsAvailable)
	}
}

func TestConcurrentIssueOfLastUnit(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	patient, err := models.CreatePatient(ctx, &models.NewPatient{
		Name:       "Race Patient",
		Age:        50,
		Gender:     "Male",
		BloodGroup: "O-",
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	seedDonorWithStock(t, ctx, "Race Donor", "9876500003", "O-", 1)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = workflow.IssueBlood(ctx, &models.NewBloodIssue{
				PatientId:   patient.ID,
				BloodGroup:  "O-",
				UnitsIssued: 1,
				IssuedTo:    "Emergency",
			})
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		var stockErr *utils.InsufficientStockError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &stockErr):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got successes=%d conflicts=%d", successes, conflicts)
	}

	stock, err := models.GetBloodStock(ctx, "O-")
	if err != nil {
		t.Fatalf("GetBloodStock: %v", err)
	}
	if stock.UnitsAvailable != 0 {
		t.Fatalf("stock must end at 0, got %d", stock.UnitsAvailable)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	patient, err := models.CreatePatient(ctx, &models.NewPatient{
		Name:       "Reject Patient",
		Age:        60,
		Gender:     "Female",
		BloodGroup: "B-",
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	request, err := models.CreateBloodRequest(ctx, &models.NewBloodRequest{
		PatientId:     patient.ID,
		BloodGroup:    "B-",
		UnitsRequired: 1,
	})
	if err != nil {
		t.Fatalf("CreateBloodRequest: %v", err)
	}

	rejected, err := models.RejectBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("RejectBloodRequest: %v", err)
	}
	if rejected.Status != models.RequestStatusRejected {
		t.Fatalf("expected Rejected, got %s", rejected.Status)
	}

	var stateErr *utils.InvalidStateError
	if _, err := models.ApproveBloodRequest(ctx, request.ID); !errors.As(err, &stateErr) {
		t.Fatalf("approving a rejected request should fail, got %v", err)
	}

	// Deleting a patient with requests is refused.
	var validationErr *utils.ValidationError
	if _, err := models.DeletePatient(ctx, patient.ID); !errors.As(err, &validationErr) {
		t.Fatalf("deleting patient with requests should fail, got %v", err)
	}
}
