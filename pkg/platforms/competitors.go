package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ErrRatingNotFound is returned when a competitor page exposes no aggregate rating.
var ErrRatingNotFound = errors.New("no aggregate rating found")

// CompetitorRating is a competitor's public rating at the time of lookup.
type CompetitorRating struct {
	Name        string
	Rating      float64
	ReviewCount int
}

// CompetitorLookupConfig configures public rating lookups.
type CompetitorLookupConfig struct {
	PlacesAPIKey  string
	YelpAPIKey    string
	PlacesBaseURL string
	YelpBaseURL   string
	HTTPClient    *http.Client
}

// CompetitorLookup reads public ratings of businesses the tenant does not own.
type CompetitorLookup struct {
	placesKey string
	yelpKey   string
	placesURL string
	yelpURL   string
	api       *apiClient
	http      *http.Client
	logger    *zap.Logger
}

// NewCompetitorLookup creates a lookup client.
func NewCompetitorLookup(cfg CompetitorLookupConfig, logger *zap.Logger) *CompetitorLookup {
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient
	}
	return &CompetitorLookup{
		placesKey: cfg.PlacesAPIKey,
		yelpKey:   cfg.YelpAPIKey,
		placesURL: orDefault(cfg.PlacesBaseURL, "https://maps.googleapis.com/maps/api/place"),
		yelpURL:   orDefault(cfg.YelpBaseURL, "https://api.yelp.com/v3"),
		api:       &apiClient{platform: "competitor", http: client},
		http:      client,
		logger:    logger.Named("competitors"),
	}
}

// Lookup dispatches on the competitor's platform: google (place id), yelp (business id) or website (URL).
func (c *CompetitorLookup) Lookup(ctx context.Context, platform, externalID string) (*CompetitorRating, error) {
	switch platform {
	case "google":
		return c.google(ctx, externalID)
	case "yelp":
		return c.yelp(ctx, externalID)
	case "website":
		return c.website(ctx, externalID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
}

func (c *CompetitorLookup) google(ctx context.Context, placeID string) (*CompetitorRating, error) {
	q := url.Values{
		"place_id": {placeID},
		"fields":   {"name,rating,user_ratings_total"},
		"key":      {c.placesKey},
	}
	var resp struct {
		Status string `json:"status"`
		Result struct {
			Name             string  `json:"name"`
			Rating           float64 `json:"rating"`
			UserRatingsTotal int     `json:"user_ratings_total"`
		} `json:"result"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.api.do(ctx, http.MethodGet, c.placesURL+"/details/json?"+q.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, &APIError{Platform: "google", StatusCode: http.StatusOK, Body: resp.Status + " " + resp.ErrorMessage}
	}
	return &CompetitorRating{Name: resp.Result.Name, Rating: resp.Result.Rating, ReviewCount: resp.Result.UserRatingsTotal}, nil
}

func (c *CompetitorLookup) yelp(ctx context.Context, businessID string) (*CompetitorRating, error) {
	var resp struct {
		Name        string  `json:"name"`
		Rating      float64 `json:"rating"`
		ReviewCount int     `json:"review_count"`
	}
	if err := c.api.do(ctx, http.MethodGet, c.yelpURL+"/businesses/"+url.PathEscape(businessID), c.yelpKey, nil, &resp); err != nil {
		return nil, err
	}
	return &CompetitorRating{Name: resp.Name, Rating: resp.Rating, ReviewCount: resp.ReviewCount}, nil
}

// website scrapes schema.org aggregateRating from JSON-LD, falling back to microdata.
func (c *CompetitorLookup) website(ctx context.Context, pageURL string) (*CompetitorRating, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build website request: %w", err)
	}
	req.Header.Set("User-Agent", "ReviewPilotBot/1.0")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("website request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Platform: "website", StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse website: %w", err)
	}
	return ParseAggregateRating(doc)
}

// ParseAggregateRating extracts the first aggregate rating in doc.
func ParseAggregateRating(doc *goquery.Document) (*CompetitorRating, error) {
	var found *CompetitorRating
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		found = findJSONLDRating(payload)
		return found == nil
	})
	if found != nil {
		return found, nil
	}

	sel := doc.Find(`[itemprop="aggregateRating"]`).First()
	if sel.Length() == 0 {
		return nil, ErrRatingNotFound
	}
	rating, ok := parseNumber(microdataValue(sel, "ratingValue"))
	if !ok {
		return nil, ErrRatingNotFound
	}
	count, _ := parseNumber(microdataValue(sel, "reviewCount"))
	if count == 0 {
		count, _ = parseNumber(microdataValue(sel, "ratingCount"))
	}
	name := strings.TrimSpace(doc.Find(`[itemscope] > [itemprop="name"]`).First().Text())
	return &CompetitorRating{Name: name, Rating: rating, ReviewCount: int(count)}, nil
}

func microdataValue(sel *goquery.Selection, prop string) string {
	el := sel.Find(`[itemprop="` + prop + `"]`).First()
	if v, ok := el.Attr("content"); ok {
		return v
	}
	return el.Text()
}

// findJSONLDRating walks arrays, @graph containers and nested objects.
func findJSONLDRating(v any) *CompetitorRating {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if r := findJSONLDRating(item); r != nil {
				return r
			}
		}
	case map[string]any:
		if agg, ok := node["aggregateRating"].(map[string]any); ok {
			rating, ok := parseNumber(agg["ratingValue"])
			if ok {
				count, _ := parseNumber(agg["reviewCount"])
				if count == 0 {
					count, _ = parseNumber(agg["ratingCount"])
				}
				name, _ := node["name"].(string)
				return &CompetitorRating{Name: name, Rating: rating, ReviewCount: int(count)}
			}
		}
		if graph, ok := node["@graph"]; ok {
			return findJSONLDRating(graph)
		}
	}
	return nil
}

func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}
