package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Lifecycle hooks write the activity trail for entity creation and hard
// deletion on the same transaction as the triggering write. Status changes
// and workflow writes log explicitly at the call site instead, where the
// before/after values are known.

func (d *Donor) AfterCreate(tx *gorm.DB) (err error) {
	description := fmt.Sprintf("Donor registered: %s (%s)", d.Name, d.BloodGroup)
	return LogActivity(tx, "donor_add", "donors", d.ID, description)
}

func (d *Donor) AfterDelete(tx *gorm.DB) (err error) {
	description := fmt.Sprintf("Donor deleted: %s (%s)", d.Name, d.BloodGroup)
	return LogActivity(tx, "donor_delete", "donors", d.ID, description)
}

func (p *Patient) AfterCreate(tx *gorm.DB) (err error) {
	description := fmt.Sprintf("Patient registered: %s (%s)", p.Name, p.BloodGroup)
	return LogActivity(tx, "patient_add", "patients", p.ID, description)
}

func (p *Patient) AfterDelete(tx *gorm.DB) (err error) {
	description := fmt.Sprintf("Patient deleted: %s (%s)", p.Name, p.BloodGroup)
	return LogActivity(tx, "patient_delete", "patients", p.ID, description)
}

func (h *Hospital) AfterCreate(tx *gorm.DB) (err error) {
	description := fmt.Sprintf("Hospital registered: %s", h.Name)
	return LogActivity(tx, "hospital_add", "hospitals", h.ID, description)
}

func (h *Hospital) AfterDelete(tx *gorm.DB) (err error) {
	description := fmt.Sprintf("Hospital deleted: %s", h.Name)
	return LogActivity(tx, "hospital_delete", "hospitals", h.ID, description)
}

func (d *Donation) AfterCreate(tx *gorm.DB) (err error) {
	var donor Donor
	if err := tx.Select("name", "blood_group").First(&donor, d.DonorId).Error; err != nil {
		return err
	}
	description := fmt.Sprintf("Donation recorded: %s (%s) - %d unit(s), bag %s",
		donor.Name, donor.BloodGroup, d.UnitsDonated, d.BagNumber)
	return LogActivity(tx, "donation_add", "donations", d.ID, description)
}

func (r *BloodRequest) AfterCreate(tx *gorm.DB) (err error) {
	var patient Patient
	if err := tx.Select("name").First(&patient, r.PatientId).Error; err != nil {
		return err
	}
	description := fmt.Sprintf("Blood request submitted: %s - %s x %d units (%s)",
		patient.Name, r.BloodGroup, r.UnitsRequired, r.Priority)
	return LogActivity(tx, "request_add", "blood_requests", r.ID, description)
}

func (i *BloodIssue) AfterCreate(tx *gorm.DB) (err error) {
	var patient Patient
	if err := tx.Select("name").First(&patient, i.PatientId).Error; err != nil {
		return err
	}
	description := fmt.Sprintf("Blood issued: %s x %d units to %s",
		i.BloodGroup, i.UnitsIssued, patient.Name)
	return LogActivity(tx, "blood_issue", "blood_issues", i.ID, description)
}
