package mockapi

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"predictdash/internal/api"
)

// Seed loads a small demo data set: fixture 42 has three markets and none
// ready, 501 and 777 have a mix, and every panel has a few rows.
func (s *Server) Seed() {
	s.AddFixture(Fixture{ID: 42, Preview: api.Preview{Mode: "live", Markets: []api.PreviewMarket{
		{Market: "1x2", Headline: "Derby preview", Reasons: []string{"odds stale"}},
		{Market: "btts", Headline: "Both teams to score", Reasons: []string{"odds stale", "low confidence"}},
		{Market: "ou25", Headline: "Over 2.5 goals", Reasons: []string{"model not calibrated"}},
	}}})
	s.AddFixture(Fixture{ID: 501, Preview: api.Preview{Mode: "live", Markets: []api.PreviewMarket{
		{Market: "1x2", Headline: "Home side favoured", Analysis: "Home form is strong."},
		{Market: "btts", Headline: "Goals expected", Analysis: "Both attacks in form.", Experimental: true},
		{Market: "ou25", Headline: "Tight game", Reasons: []string{"low confidence"}},
	}}})
	s.AddFixture(Fixture{ID: 777, Preview: api.Preview{Mode: "shadow", Markets: []api.PreviewMarket{
		{Market: "1x2", Headline: "Away upset possible", Analysis: "Injuries at home."},
	}}})

	now := s.clock.Now().UTC()
	ops := make([]gin.H, 0, 12)
	for i := 1; i <= 12; i++ {
		status := "done"
		if i%5 == 0 {
			status = "failed"
		}
		ops = append(ops, gin.H{"id": i, "job": fmt.Sprintf("ingest-odds-%02d", i), "status": status, "startedAt": now.Add(-time.Duration(i) * time.Minute)})
	}
	s.SetPanel("operations", ops)
	s.SetPanel("fixtures", []gin.H{
		{"id": 42, "home": "North", "away": "South", "kickoff": now.Add(26 * time.Hour), "ready": 0},
		{"id": 501, "home": "East", "away": "West", "kickoff": now.Add(50 * time.Hour), "ready": 2},
		{"id": 777, "home": "Harbour", "away": "Valley", "kickoff": now.Add(74 * time.Hour), "ready": 1},
	})
	s.SetPanel("models", []gin.H{
		{"name": "elo-goals", "version": "2026.10", "brier": 0.198},
		{"name": "xg-poisson", "version": "2026.09", "brier": 0.204},
	})
}
