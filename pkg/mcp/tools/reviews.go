// Package tools provides the review tools served on /mcp.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

const (
	defaultReviewLimit = 20
	maxReviewLimit     = 100
)

// ReviewToolDeps contains dependencies for the review tools.
// Every call runs as the authenticated user, so location visibility matches the REST API.
type ReviewToolDeps struct {
	Locations services.LocationService
	Reviews   services.ReviewService
	Logger    *zap.Logger
}

// RegisterReviewTools registers the location and review tools.
func RegisterReviewTools(s *server.MCPServer, deps *ReviewToolDeps) {
	registerListLocationsTool(s, deps)
	registerListReviewsTool(s, deps)
	registerReviewStatsTool(s, deps)
	registerDraftReplyTool(s, deps)
}

type locationSummary struct {
	ID         uuid.UUID  `json:"id"`
	BusinessID *uuid.UUID `json:"business_id,omitempty"`
	Name       string     `json:"name"`
	City       string     `json:"city,omitempty"`
	State      string     `json:"state,omitempty"`
	IsActive   bool       `json:"is_active"`
}

func registerListLocationsTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"list_locations",
		mcp.WithDescription(
			"List the locations you can see. "+
				"Use the returned ids as location_id when filtering list_reviews.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return nil, err
		}

		locations, err := deps.Locations.List(ctx, p.OrganizationID, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list locations: %w", err)
		}

		result := struct {
			Locations []locationSummary `json:"locations"`
			Count     int               `json:"count"`
		}{
			Locations: make([]locationSummary, 0, len(locations)),
			Count:     len(locations),
		}
		for _, l := range locations {
			result.Locations = append(result.Locations, locationSummary{
				ID:         l.ID,
				BusinessID: l.BusinessID,
				Name:       l.Name,
				City:       l.City,
				State:      l.State,
				IsActive:   l.IsActive,
			})
		}
		return jsonResult(result)
	})
}

func registerListReviewsTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"list_reviews",
		mcp.WithDescription(
			"List reviews for a business, newest first. "+
				"Filters narrow by location, platform, rating range, sentiment, reply state and text. "+
				"Returns the page of reviews and the total count matching the filters.",
		),
		mcp.WithString("business_id", mcp.Required(), mcp.Description("Business UUID")),
		mcp.WithString("location_id", mcp.Description("Only reviews for this location UUID")),
		mcp.WithString("platform", mcp.Description("google, yelp or facebook")),
		mcp.WithNumber("min_rating", mcp.Description("Lowest star rating to include (1-5)")),
		mcp.WithNumber("max_rating", mcp.Description("Highest star rating to include (1-5)")),
		mcp.WithString("sentiment", mcp.Description("positive, neutral or negative")),
		mcp.WithBoolean("responded", mcp.Description("true for answered reviews, false for unanswered")),
		mcp.WithString("search", mcp.Description("Substring match on review text and reviewer name")),
		mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return nil, err
		}
		businessID, errResult := uuidArg(req, "business_id")
		if errResult != nil {
			return errResult, nil
		}

		filter, errResult := reviewFilterFromArgs(req)
		if errResult != nil {
			return errResult, nil
		}
		filter.BusinessID = businessID

		reviews, total, err := deps.Reviews.List(ctx, p.OrganizationID, p.UserID, filter)
		if err != nil {
			if r := serviceErrorResult(err); r != nil {
				return r, nil
			}
			return nil, fmt.Errorf("failed to list reviews: %w", err)
		}
		if reviews == nil {
			reviews = []*models.Review{}
		}

		return jsonResult(struct {
			Reviews []*models.Review `json:"reviews"`
			Total   int              `json:"total"`
			Limit   int              `json:"limit"`
			Offset  int              `json:"offset"`
		}{reviews, total, filter.Limit, filter.Offset})
	})
}

func reviewFilterFromArgs(req mcp.CallToolRequest) (*models.ReviewFilter, *mcp.CallToolResult) {
	filter := &models.ReviewFilter{
		Platform:  strings.TrimSpace(req.GetString("platform", "")),
		Sentiment: strings.TrimSpace(req.GetString("sentiment", "")),
		Search:    strings.TrimSpace(req.GetString("search", "")),
		MinRating: req.GetInt("min_rating", 0),
		MaxRating: req.GetInt("max_rating", 0),
		Limit:     req.GetInt("limit", defaultReviewLimit),
		Offset:    req.GetInt("offset", 0),
	}

	if raw := strings.TrimSpace(req.GetString("location_id", "")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, NewErrorResult("invalid_parameters", "location_id must be a UUID")
		}
		filter.LocationIDs = []uuid.UUID{id}
	}
	if _, ok := req.GetArguments()["responded"]; ok {
		responded := req.GetBool("responded", false)
		filter.Responded = &responded
	}

	if filter.MinRating < 0 || filter.MinRating > 5 || filter.MaxRating < 0 || filter.MaxRating > 5 {
		return nil, NewErrorResult("invalid_parameters", "ratings must be between 1 and 5")
	}
	if filter.Offset < 0 {
		return nil, NewErrorResult("invalid_parameters", "offset must not be negative")
	}
	if filter.Limit <= 0 || filter.Limit > maxReviewLimit {
		filter.Limit = maxReviewLimit
	}
	return filter, nil
}

func registerReviewStatsTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"review_stats",
		mcp.WithDescription(
			"Review analytics for a business over the locations you can see: "+
				"totals, average rating, rating distribution, sentiment, response rate, "+
				"per-platform and per-location rollups, and the monthly trend.",
		),
		mcp.WithString("business_id", mcp.Required(), mcp.Description("Business UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return nil, err
		}
		businessID, errResult := uuidArg(req, "business_id")
		if errResult != nil {
			return errResult, nil
		}

		stats, err := deps.Reviews.Analytics(ctx, p.OrganizationID, p.UserID, businessID)
		if err != nil {
			if r := serviceErrorResult(err); r != nil {
				return r, nil
			}
			return nil, fmt.Errorf("failed to load review stats: %w", err)
		}
		return jsonResult(stats)
	})
}

func registerDraftReplyTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"draft_reply",
		mcp.WithDescription(
			"Draft a reply to a review in the business's configured tone. "+
				"The draft is returned only; nothing is posted to the platform. Requires the manager role.",
		),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := principal(ctx)
		if err != nil {
			return nil, err
		}
		if !p.HasRole(auth.RoleManager) {
			return NewErrorResult("forbidden", "draft_reply requires the manager role"), nil
		}
		reviewID, errResult := uuidArg(req, "review_id")
		if errResult != nil {
			return errResult, nil
		}

		draft, err := deps.Reviews.Draft(ctx, p.OrganizationID, p.UserID, reviewID)
		if err != nil {
			if r := serviceErrorResult(err); r != nil {
				return r, nil
			}
			deps.Logger.Error("Failed to draft reply",
				zap.String("review_id", reviewID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("failed to draft reply: %w", err)
		}
		return jsonResult(struct {
			ReviewID uuid.UUID `json:"review_id"`
			Draft    string    `json:"draft"`
		}{reviewID, draft})
	})
}
