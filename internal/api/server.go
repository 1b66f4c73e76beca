package api

import (
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"

	"github.com/Sudeti/qkb/internal/db"
	"github.com/Sudeti/qkb/internal/jobs"
	"github.com/Sudeti/qkb/internal/models"
)

// niptPattern matches the Albanian NIPT format: letter + 7-9 digits + letter.
var niptPattern = regexp.MustCompile(`^[A-Za-z]\d{7,9}[A-Za-z]$`)

type Server struct {
	Store     *db.Store
	Submitter *jobs.Submitter
	Echo      *echo.Echo
}

func NewServer(pool *pgxpool.Pool) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		Store:     db.NewStore(pool),
		Submitter: jobs.NewSubmitter(db.NewQueue(pool)),
		Echo:      e,
	}

	api := e.Group("/api/v1")

	// Per-IP rate limit on the search path; lookups elsewhere are cheap.
	searchLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate: 5, Burst: 10, ExpiresIn: time.Minute,
		}),
	})
	api.GET("/search", s.handleSearch, searchLimiter)

	api.GET("/companies/:nipt", s.handleCompanyDetail)
	api.POST("/tenders", s.handleCreateTender)
	api.GET("/scrapes", s.handleListScrapes)
	api.POST("/scrape", s.handleTriggerScrape, requireAdminSecret)

	return s
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

type searchResponse struct {
	Query             string           `json:"query"`
	Results           []models.Company `json:"results"`
	ResultCount       int              `json:"result_count"`
	OnDemandTriggered bool             `json:"on_demand_triggered"`
}

// handleSearch looks a query up locally and, when it matches the NIPT format
// with zero hits, schedules a background scrape. The response never waits for
// that scrape.
func (s *Server) handleSearch(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	resp := searchResponse{Query: query, Results: []models.Company{}}
	if query == "" {
		return c.JSON(http.StatusOK, resp)
	}

	ctx := c.Request().Context()
	results, err := s.Store.SearchCompanies(ctx, query, 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	if len(results) == 0 && niptPattern.MatchString(query) {
		if err := s.Submitter.SubmitScrapeNIPT(ctx, strings.ToUpper(query)); err != nil {
			log.Printf("[API] Failed to submit on-demand scrape for %s: %v", query, err)
		} else {
			resp.OnDemandTriggered = true
		}
	}

	if results != nil {
		resp.Results = results
	}
	resp.ResultCount = len(resp.Results)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCompanyDetail(c echo.Context) error {
	ctx := c.Request().Context()

	company, found, err := s.Store.GetCompanyByNIPT(ctx, c.Param("nipt"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "company not found")
	}

	shareholders, err := s.Store.ListShareholders(ctx, company.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	representatives, err := s.Store.ListRepresentatives(ctx, company.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	changes, err := s.Store.ListOwnershipChanges(ctx, company.ID, 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"company":           company,
		"shareholders":      shareholders,
		"representatives":   representatives,
		"ownership_changes": changes,
	})
}

type createTenderRequest struct {
	Title      string  `json:"title"`
	Authority  string  `json:"authority"`
	Value      *string `json:"value"`
	AwardDate  *string `json:"award_date"`
	WinnerName string  `json:"winner_name"`
	WinnerNIPT string  `json:"winner_nipt"`
}

// handleCreateTender persists a tender. When the winner NIPT cannot be
// resolved locally, a single-identifier scrape is scheduled as a background
// repair; the request itself never blocks on it.
func (s *Server) handleCreateTender(c echo.Context) error {
	var req createTenderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	tender := models.Tender{
		Title:      strings.TrimSpace(req.Title),
		Authority:  strings.TrimSpace(req.Authority),
		WinnerName: strings.TrimSpace(req.WinnerName),
		WinnerNIPT: strings.ToUpper(strings.TrimSpace(req.WinnerNIPT)),
	}
	if tender.WinnerNIPT != "" && !niptPattern.MatchString(tender.WinnerNIPT) {
		return echo.NewHTTPError(http.StatusBadRequest, "winner_nipt is not a valid NIPT")
	}
	if req.Value != nil {
		v, err := decimal.NewFromString(*req.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid value")
		}
		tender.Value = &v
	}
	if req.AwardDate != nil {
		t, err := time.Parse("2006-01-02", *req.AwardDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid award_date")
		}
		tender.AwardDate = &t
	}

	ctx := c.Request().Context()
	saved, unresolved, err := s.Store.SaveTender(ctx, tender)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "saving tender failed")
	}

	if unresolved {
		if err := s.Submitter.SubmitScrapeNIPT(ctx, saved.WinnerNIPT); err != nil {
			log.Printf("[API] Failed to submit winner scrape for %s: %v", saved.WinnerNIPT, err)
		}
	}

	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleListScrapes(c echo.Context) error {
	logs, err := s.Store.ListScrapeLogs(c.Request().Context(), 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, logs)
}

type triggerScrapeRequest struct {
	Categories []string `json:"categories"`
	Limit      int      `json:"limit"`
}

func (s *Server) handleTriggerScrape(c echo.Context) error {
	var req triggerScrapeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := s.Submitter.SubmitFullScrape(c.Request().Context(), req.Categories, req.Limit); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "enqueue failed")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func requireAdminSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret == "" {
			return echo.NewHTTPError(http.StatusForbidden, "admin endpoint disabled")
		}
		if c.Request().Header.Get("X-Admin-Secret") != secret {
			return echo.NewHTTPError(http.StatusUnauthorized, "bad admin secret")
		}
		return next(c)
	}
}
