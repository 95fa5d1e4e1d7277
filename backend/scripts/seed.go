//go:build ignore

// Seeds a small demo network for one owner and scores it.
//
//	go run scripts/seed.go [-owner demo-user]
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/services"
	"warmintro/backend/pkg/config"
	"warmintro/backend/pkg/logger"
)

func main() {
	ownerID := flag.String("owner", "demo-user", "Owner to seed contacts for")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sm, err := services.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer sm.Close()

	report, err := sm.Ingest.Run(ctx, *ownerID, demoContacts(time.Now()))
	if err != nil {
		log.Fatal("Seeding failed", zap.Error(err))
	}
	log.Info("Seed complete",
		zap.String("owner_id", *ownerID),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("dropped", report.Dropped),
		zap.Int("scored", report.Scored),
	)
}

func demoContacts(now time.Time) []contact.Contact {
	daysAgo := func(d int) time.Time { return now.AddDate(0, 0, -d) }
	return []contact.Contact{
		{
			Email: "sarah.chen@stripe.com", Name: "Sarah Chen", Company: "Stripe",
			Title: "Engineering Manager", Location: "San Francisco", Source: "gmail",
			Activity: &contact.Activity{EmailsSent: 42, EmailsReceived: 38, Meetings: 6, FirstSeen: daysAgo(900), LastSeen: daysAgo(3)},
		},
		{
			Email: "sarah.chen@stripe.com", Name: "Sarah Chen", Phone: "+1 415 555 0101",
			LinkedInURL: "https://www.linkedin.com/in/sarahchen", Source: "linkedin",
		},
		{
			Email: "marcus@plaid.com", Name: "Marcus Webb", Company: "Plaid",
			Title: "VP Product", Location: "New York", Source: "gmail",
			Activity: &contact.Activity{EmailsSent: 8, EmailsReceived: 11, Meetings: 2, FirstSeen: daysAgo(400), LastSeen: daysAgo(45)},
		},
		{
			Email: "priya.n@gmail.com", Name: "Priya Natarajan", Company: "Figma",
			Title: "Senior Designer", Source: "calendar",
			Activity: &contact.Activity{Meetings: 4, FirstSeen: daysAgo(200), LastSeen: daysAgo(20)},
		},
		{
			Name: "Tom Alvarez", Company: "Acme Ventures", Title: "Partner", Source: "csv",
		},
		{
			Email: "jlee@oldco.com", Name: "Jordan Lee", Company: "OldCo",
			Title: "CTO", Source: "gmail",
			Activity: &contact.Activity{EmailsSent: 3, EmailsReceived: 1, FirstSeen: daysAgo(1500), LastSeen: daysAgo(400)},
		},
	}
}
