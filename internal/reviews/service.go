package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/stats"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 1000

	uniqueOrderReview = "ux_reviews_order_id"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput is a buyer's review of one order.
type CreateInput struct {
	OrderID    uuid.UUID
	ReviewerID uuid.UUID
	Rating     int
	Comment    string
}

// ReviewDetail is the API representation of a review.
type ReviewDetail struct {
	ID               uuid.UUID `json:"id"`
	OrderID          uuid.UUID `json:"order_id"`
	GigID            uuid.UUID `json:"gig_id"`
	ReviewerID       uuid.UUID `json:"reviewer_id"`
	ReviewerUsername string    `json:"reviewer_username,omitempty"`
	Rating           int       `json:"rating"`
	Comment          string    `json:"comment"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateResult adds the refreshed averages to the stored review.
type CreateResult struct {
	Review              ReviewDetail    `json:"review"`
	GigAverageRating    decimal.Decimal `json:"gig_average_rating"`
	SellerAverageRating decimal.Decimal `json:"seller_average_rating"`
}

type ReviewList struct {
	Reviews    []ReviewDetail `json:"reviews"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	ListByGig(ctx context.Context, gigID uuid.UUID, params pagination.Params) (*ReviewList, error)
}

type ServiceParams struct {
	Repo   Repository
	Orders orders.Repository
	Gigs   gigs.Repository
	Tx     txRunner
	Rollup stats.Applier
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	orders orders.Repository
	gigs   gigs.Repository
	tx     txRunner
	rollup stats.Applier
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("reviews repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Gigs == nil:
		return nil, fmt.Errorf("gigs repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Rollup == nil:
		return nil, fmt.Errorf("stats rollup required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:   p.Repo,
		orders: p.Orders,
		gigs:   p.Gigs,
		tx:     p.Tx,
		rollup: p.Rollup,
		outbox: p.Outbox,
		logg:   p.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.ReviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Rating < MinRating || input.Rating > MaxRating {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}
	comment := strings.TrimSpace(input.Comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("comment must be at most %d characters", MaxCommentLength))
	}

	var result *CreateResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// the row lock serializes concurrent reviews of the same order
		order, err := s.orders.WithTx(tx).FindForUpdate(ctx, input.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.BuyerID != input.ReviewerID {
			return pkgerrors.New(pkgerrors.CodeValidation, "only the buyer can review this order")
		}
		if order.Status != enums.OrderStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeValidation, "only completed orders can be reviewed")
		}

		repo := s.repo.WithTx(tx)
		exists, err := repo.ExistsForOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing review")
		}
		if exists {
			return alreadyReviewed()
		}

		review := &models.Review{
			ID:         uuid.New(),
			OrderID:    order.ID,
			GigID:      order.GigID,
			ReviewerID: input.ReviewerID,
			Rating:     input.Rating,
			Comment:    comment,
		}
		if err := repo.Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, uniqueOrderReview) {
				return alreadyReviewed()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
		}

		averages, err := s.rollup.Apply(ctx, tx, stats.Event{
			Kind:     stats.EventReviewCreated,
			GigID:    order.GigID,
			SellerID: order.Gig.SellerID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rating statistics")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReviewCreated,
			AggregateType: enums.AggregateReview,
			AggregateID:   review.ID,
			Actor:         &outbox.ActorRef{UserID: input.ReviewerID, Role: string(enums.ActorBuyer)},
			Data: payloads.ReviewCreatedEvent{
				ReviewID:            review.ID,
				OrderID:             order.ID,
				GigID:               order.GigID,
				SellerID:            order.Gig.SellerID,
				Rating:              review.Rating,
				GigAverageRating:    averages.GigAverageRating,
				SellerAverageRating: averages.SellerAverageRating,
			},
		}); err != nil {
			return err
		}

		result = &CreateResult{
			Review:              detailFromModel(review, ""),
			GigAverageRating:    averages.GigAverageRating,
			SellerAverageRating: averages.SellerAverageRating,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
			"review_id": result.Review.ID.String(),
			"rating":    result.Review.Rating,
		})
		s.logg.Info(logCtx, "review.created")
	}
	return result, nil
}

func (s *service) ListByGig(ctx context.Context, gigID uuid.UUID, params pagination.Params) (*ReviewList, error) {
	if _, err := s.gigs.FindByID(ctx, gigID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gig")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListByGig(ctx, gigID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	out := &ReviewList{Reviews: make([]ReviewDetail, 0, len(rows))}
	for i := range rows {
		out.Reviews = append(out.Reviews, detailFromModel(&rows[i].Review, rows[i].ReviewerUsername))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

func alreadyReviewed() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "order has already been reviewed")
}

func detailFromModel(review *models.Review, username string) ReviewDetail {
	return ReviewDetail{
		ID:               review.ID,
		OrderID:          review.OrderID,
		GigID:            review.GigID,
		ReviewerID:       review.ReviewerID,
		ReviewerUsername: username,
		Rating:           review.Rating,
		Comment:          review.Comment,
		CreatedAt:        review.CreatedAt,
	}
}
