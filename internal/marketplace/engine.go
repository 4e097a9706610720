package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
	"carbon-scribe/marketplace/marketplace-backend/pkg/workflows"
)

// Transition names reported to the observer.
const (
	TransitionReview   = "review"
	TransitionList     = "create_listing"
	TransitionBuy      = "buy"
	TransitionClaim    = "claim"
	TransitionWithdraw = "withdraw"
)

var maxPrice = decimal.New(1, 10)

// TransitionObserver is told the outcome of every lifecycle transition.
type TransitionObserver func(transition string, elapsed time.Duration, err error)

// Engine drives projects, credits and listings through their lifecycle.
// Every transition runs in one transaction and publishes its event only after
// the commit.
type Engine interface {
	Review(ctx context.Context, caller auth.Caller, projectID uuid.UUID, req ReviewRequest) (*projects.Project, error)
	CreateListing(ctx context.Context, caller auth.Caller, req CreateListingRequest) (*Listing, error)
	Buy(ctx context.Context, caller auth.Caller, listingID uuid.UUID) (*CarbonCredit, error)
	Claim(ctx context.Context, caller auth.Caller, listingID uuid.UUID) (*Listing, error)
	Withdraw(ctx context.Context, caller auth.Caller, listingID uuid.UUID) (*Listing, error)

	ListActiveListings(ctx context.Context) ([]Listing, error)
	ListMyListings(ctx context.Context, caller auth.Caller) ([]Listing, error)
	ListMyCredits(ctx context.Context, caller auth.Caller) ([]CarbonCredit, error)
	GetCredit(ctx context.Context, caller auth.Caller, id uuid.UUID) (*CarbonCredit, error)

	// DeleteProjectDependents lets project deletion cascade through the
	// listing book inside its own transaction.
	DeleteProjectDependents(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error
}

type Option func(*engine)

// WithObserver registers a callback for transition outcomes.
func WithObserver(observer TransitionObserver) Option {
	return func(e *engine) { e.observer = observer }
}

type engine struct {
	repo      Repository
	projects  projects.Repository
	publisher notifications.Publisher
	logger    *zap.Logger
	observer  TransitionObserver

	projectFlow *workflows.StateMachine
	creditFlow  *workflows.StateMachine
}

func NewEngine(repo Repository, projectRepo projects.Repository, publisher notifications.Publisher, logger *zap.Logger, opts ...Option) Engine {
	e := &engine{
		repo:        repo,
		projects:    projectRepo,
		publisher:   publisher,
		logger:      logger,
		projectFlow: workflows.NewProjectStateMachine(),
		creditFlow:  workflows.NewCreditStateMachine(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) observe(transition string, start time.Time, err error) {
	if e.observer != nil {
		e.observer(transition, time.Since(start), err)
	}
}

// Review approves or rejects a project. The first approval mints the
// project's credit in the same transaction as the status change; later
// reviews never mint again.
func (e *engine) Review(ctx context.Context, caller auth.Caller, projectID uuid.UUID, req ReviewRequest) (project *projects.Project, err error) {
	start := time.Now()
	defer func() { e.observe(TransitionReview, start, err) }()

	if err := auth.RequireRole(caller, auth.RoleVerifier); err != nil {
		return nil, err
	}

	to := projects.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if to != projects.StatusApproved && to != projects.StatusRejected {
		return nil, apperrors.Validation("status must be APPROVED or REJECTED")
	}

	var (
		credit  *CarbonCredit
		changed bool
	)
	err = e.repo.Transaction(ctx, func(tx *gorm.DB) error {
		projectRepo := e.projects.WithTx(tx)
		current, err := projectRepo.GetByIDForUpdate(ctx, projectID)
		if errors.Is(err, projects.ErrProjectNotFound) {
			return apperrors.NotFound("project not found")
		}
		if err != nil {
			return err
		}
		project = current
		from := current.Status

		if from == projects.StatusApproved && to == projects.StatusApproved {
			return nil
		}

		if to == projects.StatusApproved {
			if req.SerialNumber == nil || *req.SerialNumber <= 0 ||
				req.TokenAddress == nil || strings.TrimSpace(*req.TokenAddress) == "" {
				return apperrors.Validation("serial number and token address are required")
			}
		}
		if !e.projectFlow.CanTransition(string(from), string(to)) {
			return apperrors.State(fmt.Sprintf("cannot move project from %s to %s", from, to))
		}

		n, err := projectRepo.UpdateReview(ctx, projectID, from, to, caller.UserID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.State("project was reviewed concurrently")
		}
		if err := projectRepo.AddStatusHistory(ctx, &projects.ProjectStatusHistory{
			ProjectID:  projectID,
			FromStatus: from,
			Status:     to,
			ChangedAt:  time.Now(),
			ChangedBy:  caller.UserID,
		}); err != nil {
			return err
		}

		metadata := map[string]interface{}{"from": from, "to": to}
		// Rejection touches only the project; a minted credit stays as it is.
		if to == projects.StatusApproved {
			creditRepo := e.repo.WithTx(tx)
			existing, err := creditRepo.GetCreditByProject(ctx, projectID)
			switch {
			case err == nil:
				// Re-approval after a rejection keeps the original credit.
				metadata["credit_id"] = existing.ID
			case errors.Is(err, ErrCreditNotFound):
				credit = &CarbonCredit{
					ProjectID:    projectID,
					OwnerID:      current.OwnerID,
					TokenID:      strings.TrimSpace(*req.TokenAddress),
					SerialNumber: *req.SerialNumber,
					Status:       CreditMinted,
				}
				if err := creditRepo.CreateCredit(ctx, credit); err != nil {
					if database.IsUniqueViolation(err) {
						return apperrors.Validation("a credit with this token address and serial number already exists")
					}
					return err
				}
				metadata["credit_id"] = credit.ID
			default:
				return err
			}
		}

		if err := projectRepo.AddActivity(ctx, projects.NewActivity(projectID, caller.UserID, projects.ActivityReviewed,
			fmt.Sprintf("Project %s %s", current.Name, strings.ToLower(string(to))), metadata)); err != nil {
			return err
		}

		project.Status = to
		project.VerifierID = &caller.UserID
		changed = true
		return nil
	})
	if err != nil {
		return nil, wrapUnclassified(err, "failed to review project")
	}
	if !changed {
		return project, nil
	}

	e.logger.Info("Project reviewed",
		zap.String("project_id", projectID.String()),
		zap.String("status", string(project.Status)),
		zap.String("verifier_id", caller.UserID.String()))

	evt := notifications.NewEvent(notifications.EventProjectReviewed, caller.UserID)
	evt.RecipientID = &project.OwnerID
	evt.ProjectID = &project.ID
	evt.Data["status"] = string(project.Status)
	evt.Data["project_name"] = project.Name
	if credit != nil {
		evt.CreditID = &credit.ID
	}
	e.publisher.Publish(ctx, evt)

	return project, nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperrors.Validation("price must be greater than zero")
	}
	if !price.Equal(price.Round(2)) {
		return apperrors.Validation("price must have at most 2 decimal places")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return apperrors.Validation("price is too large")
	}
	return nil
}

// CreateListing offers an owned, minted credit for sale.
func (e *engine) CreateListing(ctx context.Context, caller auth.Caller, req CreateListingRequest) (listing *Listing, err error) {
	start := time.Now()
	defer func() { e.observe(TransitionList, start, err) }()

	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}
	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}

	err = e.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		credit, err := repo.GetCredit(ctx, req.CreditID)
		if errors.Is(err, ErrCreditNotFound) {
			return apperrors.NotFound("credit not found")
		}
		if err != nil {
			return err
		}
		if credit.OwnerID != caller.UserID {
			return apperrors.Validation("you do not own this credit")
		}
		if credit.Status != CreditMinted || !e.creditFlow.CanTransition(string(credit.Status), string(CreditListed)) {
			return apperrors.Validation("credit is not available for sale")
		}

		n, err := repo.CompareAndSetCreditStatus(ctx, credit.ID, CreditMinted, CreditListed)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.Validation("credit is not available for sale")
		}

		listing = &Listing{
			SellerID: caller.UserID,
			CreditID: credit.ID,
			Price:    req.Price,
			IsActive: true,
		}
		if err := repo.CreateListing(ctx, listing); err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Validation("credit is not available for sale")
			}
			return err
		}
		credit.Status = CreditListed
		listing.Credit = credit
		return nil
	})
	if err != nil {
		return nil, wrapUnclassified(err, "failed to create listing")
	}

	e.logger.Info("Listing created",
		zap.String("listing_id", listing.ID.String()),
		zap.String("credit_id", listing.CreditID.String()),
		zap.String("price", listing.Price.StringFixed(2)))

	evt := notifications.NewEvent(notifications.EventListingCreated, caller.UserID)
	evt.ListingID = &listing.ID
	evt.CreditID = &listing.CreditID
	evt.Data["price"] = listing.Price.StringFixed(2)
	e.publisher.Publish(ctx, evt)

	return listing, nil
}

// Buy purchases an active listing. The listing is closed with a
// compare-and-swap, so of two concurrent buyers exactly one wins.
func (e *engine) Buy(ctx context.Context, caller auth.Caller, listingID uuid.UUID) (credit *CarbonCredit, err error) {
	start := time.Now()
	defer func() { e.observe(TransitionBuy, start, err) }()

	if err := auth.RequireRole(caller, auth.RoleBuyer); err != nil {
		return nil, err
	}

	var listing *Listing
	err = e.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		found, err := repo.GetListing(ctx, listingID)
		if errors.Is(err, ErrListingNotFound) {
			return apperrors.NotFound("listing not found")
		}
		if err != nil {
			return err
		}
		listing = found
		if !listing.IsActive {
			return apperrors.State("listing no longer active")
		}
		if !e.creditFlow.CanTransition(string(CreditListed), string(CreditSold)) {
			return apperrors.State("listing no longer active")
		}

		n, err := repo.MarkSold(ctx, listing.ID, caller.UserID, time.Now().UTC())
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.State("listing no longer active")
		}

		n, err = repo.TransferCredit(ctx, listing.CreditID, CreditListed, caller.UserID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.State("listing no longer active")
		}

		credit, err = repo.GetCredit(ctx, listing.CreditID)
		return err
	})
	if err != nil {
		return nil, wrapUnclassified(err, "failed to buy listing")
	}

	e.logger.Info("Listing sold",
		zap.String("listing_id", listing.ID.String()),
		zap.String("credit_id", credit.ID.String()),
		zap.String("buyer_id", caller.UserID.String()))

	evt := notifications.NewEvent(notifications.EventListingSold, caller.UserID)
	evt.RecipientID = &listing.SellerID
	evt.ListingID = &listing.ID
	evt.CreditID = &credit.ID
	evt.ProjectID = &credit.ProjectID
	evt.Data["price"] = listing.Price.StringFixed(2)
	if credit.Project != nil {
		evt.Data["project_name"] = credit.Project.Name
	}
	e.publisher.Publish(ctx, evt)

	return credit, nil
}

// Claim records that the seller collected the proceeds of a completed sale.
// A listing can be claimed once.
func (e *engine) Claim(ctx context.Context, caller auth.Caller, listingID uuid.UUID) (listing *Listing, err error) {
	start := time.Now()
	defer func() { e.observe(TransitionClaim, start, err) }()

	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}

	listing, err = e.repo.GetListingForSeller(ctx, listingID, caller.UserID)
	if errors.Is(err, ErrListingNotFound) {
		return nil, apperrors.NotFound("listing not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing.Claimed {
		return nil, apperrors.State("already claimed")
	}
	if !listing.Sold() {
		return nil, apperrors.State("sale not completed")
	}

	n, err := e.repo.MarkClaimed(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim listing: %w", err)
	}
	if n == 0 {
		return nil, apperrors.State("already claimed")
	}
	listing.Claimed = true

	e.logger.Info("Proceeds claimed",
		zap.String("listing_id", listing.ID.String()),
		zap.String("seller_id", caller.UserID.String()))

	evt := notifications.NewEvent(notifications.EventProceedsClaimed, caller.UserID)
	evt.RecipientID = &caller.UserID
	evt.ListingID = &listing.ID
	evt.CreditID = &listing.CreditID
	evt.Data["price"] = listing.Price.StringFixed(2)
	e.publisher.Publish(ctx, evt)

	return listing, nil
}

// Withdraw closes an unsold listing and returns the credit to MINTED so it
// can be listed again.
func (e *engine) Withdraw(ctx context.Context, caller auth.Caller, listingID uuid.UUID) (listing *Listing, err error) {
	start := time.Now()
	defer func() { e.observe(TransitionWithdraw, start, err) }()

	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}

	err = e.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		found, err := repo.GetListingForCreditOwner(ctx, listingID, caller.UserID)
		if errors.Is(err, ErrListingNotFound) {
			return apperrors.NotFound("listing not found")
		}
		if err != nil {
			return err
		}
		listing = found

		n, err := repo.Deactivate(ctx, listing.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.State("listing is not active")
		}

		if !e.creditFlow.CanTransition(string(CreditListed), string(CreditMinted)) {
			return apperrors.State("listing is not active")
		}
		n, err = repo.CompareAndSetCreditStatus(ctx, listing.CreditID, CreditListed, CreditMinted)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperrors.State("listing is not active")
		}

		listing.IsActive = false
		if listing.Credit != nil {
			listing.Credit.Status = CreditMinted
		}
		return nil
	})
	if err != nil {
		return nil, wrapUnclassified(err, "failed to withdraw listing")
	}

	e.logger.Info("Listing withdrawn",
		zap.String("listing_id", listing.ID.String()),
		zap.String("credit_id", listing.CreditID.String()))

	evt := notifications.NewEvent(notifications.EventListingWithdrawn, caller.UserID)
	evt.ListingID = &listing.ID
	evt.CreditID = &listing.CreditID
	e.publisher.Publish(ctx, evt)

	return listing, nil
}

func (e *engine) ListActiveListings(ctx context.Context) ([]Listing, error) {
	listings, err := e.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

func (e *engine) ListMyListings(ctx context.Context, caller auth.Caller) ([]Listing, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}
	listings, err := e.repo.ListBySeller(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

func (e *engine) ListMyCredits(ctx context.Context, caller auth.Caller) ([]CarbonCredit, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	credits, err := e.repo.ListCreditsByOwner(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credits: %w", err)
	}
	return credits, nil
}

func (e *engine) GetCredit(ctx context.Context, caller auth.Caller, id uuid.UUID) (*CarbonCredit, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	credit, err := e.repo.GetCredit(ctx, id)
	if errors.Is(err, ErrCreditNotFound) {
		return nil, apperrors.NotFound("credit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credit: %w", err)
	}
	return credit, nil
}

// DeleteProjectDependents removes a project's listings and credit. A project
// whose credit has been sold keeps its history and cannot be deleted.
func (e *engine) DeleteProjectDependents(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error {
	repo := e.repo.WithTx(tx)
	sold, err := repo.CountSoldCredits(ctx, projectID)
	if err != nil {
		return err
	}
	if sold > 0 {
		return apperrors.State("project has sold credits and cannot be deleted")
	}
	if err := repo.DeleteListingsForProject(ctx, projectID); err != nil {
		return err
	}
	return repo.DeleteCreditsForProject(ctx, projectID)
}

func wrapUnclassified(err error, msg string) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
