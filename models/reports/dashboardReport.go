package reports

import (
	"context"
	"time"

	"bitbucket.org/mmhealthfocus/bbms_backend/config"
	"bitbucket.org/mmhealthfocus/bbms_backend/models"
)

type DashboardSummary struct {
	TotalDonors         int64                `json:"total_donors"`
	ActiveDonors        int64                `json:"active_donors"`
	TotalPatients       int64                `json:"total_patients"`
	TotalHospitals      int64                `json:"total_hospitals"`
	PendingRequests     int64                `json:"pending_requests"`
	CriticalPending     int64                `json:"critical_pending_requests"`
	DonationsThisMonth  int64                `json:"donations_this_month"`
	IssuesThisMonth     int64                `json:"issues_this_month"`
	TotalUnitsAvailable int                  `json:"total_units_available"`
	LowStockGroups      []string             `json:"low_stock_groups"`
	StockByGroup        []*models.BloodStock `json:"stock_by_group"`
}

// GetDashboardSummary aggregates the landing-page counters. Cached briefly in
// redis when ENABLE_REPORT_CACHE is on; the counters tolerate a couple of
// minutes of staleness.
func GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	const cacheKey = "report:dashboard"

	if reportCacheEnabled() {
		var cached DashboardSummary
		if found, err := cacheGet(cacheKey, &cached); err == nil && found {
			return &cached, nil
		}
	}

	started := time.Now()
	defer logSlowReport(ctx, "DashboardSummary", started, nil)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)

	var summary DashboardSummary

	if err := dbCtx.Model(&models.Donor{}).Count(&summary.TotalDonors).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&models.Donor{}).
		Where("status = ?", models.DonorStatusActive).
		Count(&summary.ActiveDonors).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&models.Patient{}).Count(&summary.TotalPatients).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&models.Hospital{}).Count(&summary.TotalHospitals).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&models.BloodRequest{}).
		Where("status = ?", models.RequestStatusPending).
		Count(&summary.PendingRequests).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&models.BloodRequest{}).
		Where("status = ? AND priority = ?", models.RequestStatusPending, models.RequestPriorityCritical).
		Count(&summary.CriticalPending).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if err := dbCtx.Model(&models.Donation{}).
		Where("donation_date >= ? AND status = ?", monthStart, models.DonationStatusCompleted).
		Count(&summary.DonationsThisMonth).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&models.BloodIssue{}).
		Where("issue_date >= ?", monthStart).
		Count(&summary.IssuesThisMonth).Error; err != nil {
		return nil, err
	}

	stocks, err := models.GetBloodStocks(ctx)
	if err != nil {
		return nil, err
	}
	summary.StockByGroup = stocks
	summary.LowStockGroups = []string{}
	for _, stock := range stocks {
		if stock.UnitsAvailable < stock.MinimumThreshold {
			summary.LowStockGroups = append(summary.LowStockGroups, stock.GroupCode)
		}
	}
	summary.TotalUnitsAvailable, err = models.GetTotalUnitsAvailable(ctx)
	if err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, &summary, reportCacheTTL())
	}

	return &summary, nil
}
