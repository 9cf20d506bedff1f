package models

import "errors"

type DonorStatus string

const (
	DonorStatusActive   DonorStatus = "Active"
	DonorStatusInactive DonorStatus = "Inactive"
	DonorStatusDeferred DonorStatus = "Deferred"
)

func (s *DonorStatus) Parse(str string) error {
	switch str {
	case "Active":
		*s = DonorStatusActive
	case "Inactive":
		*s = DonorStatusInactive
	case "Deferred":
		*s = DonorStatusDeferred
	default:
		return errors.New("invalid donor status")
	}
	return nil
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

func (g *Gender) Parse(str string) error {
	switch str {
	case "Male":
		*g = GenderMale
	case "Female":
		*g = GenderFemale
	case "Other":
		*g = GenderOther
	default:
		return errors.New("invalid gender")
	}
	return nil
}

type DonationStatus string

const (
	DonationStatusCompleted DonationStatus = "Completed"
	DonationStatusDiscarded DonationStatus = "Discarded"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "Pending"
	RequestStatusApproved  RequestStatus = "Approved"
	RequestStatusRejected  RequestStatus = "Rejected"
	RequestStatusFulfilled RequestStatus = "Fulfilled"
)

type RequestPriority string

const (
	RequestPriorityNormal   RequestPriority = "Normal"
	RequestPriorityHigh     RequestPriority = "High"
	RequestPriorityCritical RequestPriority = "Critical"
)

func (p *RequestPriority) Parse(str string) error {
	switch str {
	case "Normal":
		*p = RequestPriorityNormal
	case "High":
		*p = RequestPriorityHigh
	case "Critical":
		*p = RequestPriorityCritical
	default:
		return errors.New("invalid priority level")
	}
	return nil
}

type HospitalStatus string

const (
	HospitalStatusActive   HospitalStatus = "Active"
	HospitalStatusInactive HospitalStatus = "Inactive"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo     NotificationSeverity = "Info"
	NotificationSeverityWarning  NotificationSeverity = "Warning"
	NotificationSeverityCritical NotificationSeverity = "Critical"
)
