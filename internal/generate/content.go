package generate

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"crmforge/internal/store"
)

// StaticGenerator is a ContentGenerator that draws from small built-in
// pools. It stands in when no AI-backed collaborator is configured and
// keeps workers functional in development.
type StaticGenerator struct {
	rng *rand.Rand
	seq int
}

// NewStaticGenerator creates a pool-backed generator with an injected
// random source.
func NewStaticGenerator(rng *rand.Rand) *StaticGenerator {
	return &StaticGenerator{rng: rng}
}

var (
	companyStems = []string{"Acme", "Globex", "Initech", "Umbrella", "Stark", "Wayne", "Hooli", "Vandelay", "Cyberdyne", "Tyrell"}
	companyTails = []string{"Industries", "Systems", "Dynamics", "Holdings", "Labs", "Partners", "Logistics", "Group"}
	firstNames   = []string{"Ava", "Liam", "Maya", "Noah", "Iris", "Owen", "Zara", "Eli", "Nora", "Jude"}
	lastNames    = []string{"Reyes", "Okafor", "Lindqvist", "Tanaka", "Muller", "Castillo", "Novak", "Haddad", "Kowalski", "Byrne"}
	stageNames   = []string{"Prospecting", "Qualification", "Needs Analysis", "Value Proposition", "Proposal/Price Quote", "Negotiation/Review"}
	taskSubjects = []string{"Follow-up call", "Send pricing deck", "Review contract terms", "Check in on trial", "Schedule demo"}
)

func (g *StaticGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// Generate returns field values for one record of the given type.
func (g *StaticGenerator) Generate(ctx context.Context, objectType store.ObjectType, scenario, industry string) (Fields, error) {
	g.seq++
	if industry == "" {
		industry = "Technology"
	}

	switch objectType {
	case store.ObjectAccount:
		name := fmt.Sprintf("%s %s", g.pick(companyStems), g.pick(companyTails))
		return &AccountFields{
			Name:              name,
			Industry:          industry,
			Website:           fmt.Sprintf("https://www.%s.example.com", strings.ToLower(strings.ReplaceAll(name, " ", ""))),
			NumberOfEmployees: 10 + g.rng.Intn(5000),
			AnnualRevenue:     float64(100_000 + g.rng.Intn(50_000_000)),
			BillingCountry:    "USA",
		}, nil

	case store.ObjectContact:
		first, last := g.pick(firstNames), g.pick(lastNames)
		return &ContactFields{
			FirstName: first,
			LastName:  last,
			Email:     fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), g.seq),
			Title:     "Director of Operations",
		}, nil

	case store.ObjectOpportunity:
		return &OpportunityFields{
			Name:      fmt.Sprintf("%s Expansion %d", industry, g.seq),
			StageName: g.pick(stageNames),
			Amount:    float64(5_000 + g.rng.Intn(500_000)),
			CloseDate: time.Now().UTC().AddDate(0, 0, 14+g.rng.Intn(120)),
		}, nil

	case store.ObjectTask:
		return &TaskFields{
			Subject:  g.pick(taskSubjects),
			Status:   "Not Started",
			Priority: "Normal",
		}, nil

	case store.ObjectEvent:
		return &EventFields{
			Subject: "Discovery meeting",
		}, nil

	default:
		return nil, fmt.Errorf("unsupported object type %s", objectType)
	}
}
