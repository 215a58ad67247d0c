package reports

import (
	"context"
	"fmt"
	"sort"

	"shoplytics/internal/timeframe"
)

// DirectLabel stands in for sessions with no referrer domain.
const DirectLabel = "direct"

// ReferrerStat is one referring domain's session count and its rounded
// share of the window's sessions.
type ReferrerStat struct {
	Domain   string `json:"domain"`
	Sessions int    `json:"sessions"`
	Percent  int    `json:"percent"`
}

// CampaignStat is one UTM campaign's session count.
type CampaignStat struct {
	Campaign string `json:"campaign"`
	Sessions int    `json:"sessions"`
}

// ReferrerReport is the referrers view: domains by share plus the UTM
// campaign tally.
type ReferrerReport struct {
	TotalSessions int            `json:"total_sessions"`
	Referrers     []ReferrerStat `json:"referrers"`
	Campaigns     []CampaignStat `json:"campaigns"`
}

// Referrers groups sessions by referrer domain, labeling referrer-less
// sessions as direct, and separately tallies UTM campaigns.
func (e *Engine) Referrers(ctx context.Context, frame timeframe.TimeFrame) (*ReferrerReport, error) {
	sessions, err := e.store.SessionsInRange(ctx, frame.From, frame.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute referrers: %w", err)
	}

	domains := make(map[string]int)
	campaigns := make(map[string]int)
	for _, s := range sessions {
		domain := s.ReferrerDomain
		if domain == "" {
			domain = DirectLabel
		}
		domains[domain]++
		if s.UTMCampaign != "" {
			campaigns[s.UTMCampaign]++
		}
	}

	report := &ReferrerReport{
		TotalSessions: len(sessions),
		Referrers:     make([]ReferrerStat, 0, len(domains)),
		Campaigns:     make([]CampaignStat, 0, len(campaigns)),
	}
	for domain, count := range domains {
		report.Referrers = append(report.Referrers, ReferrerStat{
			Domain:   domain,
			Sessions: count,
			Percent:  roundPercent(count, len(sessions)),
		})
	}
	sort.Slice(report.Referrers, func(i, j int) bool {
		if report.Referrers[i].Sessions != report.Referrers[j].Sessions {
			return report.Referrers[i].Sessions > report.Referrers[j].Sessions
		}
		return report.Referrers[i].Domain < report.Referrers[j].Domain
	})

	for campaign, count := range campaigns {
		report.Campaigns = append(report.Campaigns, CampaignStat{Campaign: campaign, Sessions: count})
	}
	sort.Slice(report.Campaigns, func(i, j int) bool {
		if report.Campaigns[i].Sessions != report.Campaigns[j].Sessions {
			return report.Campaigns[i].Sessions > report.Campaigns[j].Sessions
		}
		return report.Campaigns[i].Campaign < report.Campaigns[j].Campaign
	})
	return report, nil
}
