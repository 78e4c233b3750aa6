package provisioning

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// SeedStatus is the outcome of seeding one account.
type SeedStatus string

const (
	SeedCreated       SeedStatus = "created"
	SeedAlreadyExists SeedStatus = "already_exists"
	SeedFailed        SeedStatus = "failed"
)

// SeedResult reports one default account.
type SeedResult struct {
	Email  string     `json:"email"`
	Status SeedStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// SeedReport lists per-account outcomes in list order. Created counts new
// accounts.
type SeedReport struct {
	Results []SeedResult `json:"results"`
	Created int          `json:"created"`
}

// DefaultAccounts is the built-in seed list: one admin, one member.
func DefaultAccounts() []AccountRequest {
	return []AccountRequest{
		{
			Email:    "admin@powerzone.com",
			Password: "admin123",
			Username: "admin",
			FullName: "Gym Admin",
			Role:     auth.RoleAdmin,
		},
		{
			Email:    "member@powerzone.com",
			Password: "member123",
			Username: "johndoe",
			FullName: "John Doe",
			Role:     auth.RoleUser,
		},
	}
}

// SeedDefaults creates every account on the default list. requester must
// be an admin. Item failures are recorded in the report and never abort
// the run, so a second run over existing accounts reports already_exists
// for each and still succeeds.
func (s *Service) SeedDefaults(ctx context.Context, requester string) (_ *SeedReport, err error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.SeedDefaults")
	defer func() { s.finish(span, opSeed, err) }()

	if err := s.authz.RequireAdmin(ctx, requester); err != nil {
		return nil, err
	}

	report := &SeedReport{Results: make([]SeedResult, 0, len(s.defaults))}
	for _, req := range s.defaults {
		res := SeedResult{Email: req.Email, Status: SeedCreated}
		itemCtx, itemSpan := s.tracer.Start(ctx, "provisioning.SeedDefaults.item")
		// create skips the admin check; requester was checked once above.
		_, err := s.create(itemCtx, itemSpan, req)
		switch {
		case err == nil:
			report.Created++
		case sserr.HasCode(err, sserr.CodeConflictAlreadyExists):
			res.Status = SeedAlreadyExists
		default:
			res.Status = SeedFailed
			res.Error = errorSummary(err)
			s.logger.WarnContext(ctx, "provisioning: seed account failed",
				"account", req,
				"error", err,
			)
		}
		itemSpan.SetAttributes(attribute.String("provisioning.seed_status", string(res.Status)))
		itemSpan.End()
		report.Results = append(report.Results, res)
	}

	span.SetAttributes(attribute.Int("provisioning.created", report.Created))
	s.logger.InfoContext(ctx, "provisioning: seeded default accounts",
		"created", report.Created,
		"total", len(report.Results),
	)
	return report, nil
}
