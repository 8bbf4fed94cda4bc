package extract

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/mgalarneau/NYC-Transit-Project/internal/httputil"
	"github.com/mgalarneau/NYC-Transit-Project/internal/metrics"
	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

const (
	DefaultRidershipURL = "https://data.ny.gov/resource/kv7t-n8in.json"

	// Socrata caps responses well above this, but smaller pages keep
	// retries cheap when a page fails mid-range.
	defaultPageSize = 50000
)

// RidershipClient fetches hourly ridership records from the Socrata API,
// paginating with $limit/$offset until a short page or the row cap.
type RidershipClient struct {
	baseURL    string
	appToken   string
	client     *http.Client
	pageSize   int
	maxElapsed time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func NewRidershipClient(baseURL, appToken string) *RidershipClient {
	if baseURL == "" {
		baseURL = DefaultRidershipURL
	}
	return &RidershipClient{
		baseURL:    baseURL,
		appToken:   appToken,
		client:     httputil.NewClient(),
		pageSize:   defaultPageSize,
		maxElapsed: 2 * time.Minute,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "ridership",
			Interval: 1 * time.Minute,
			Timeout:  2 * time.Minute,
		}),
	}
}

// SetPageSize overrides the pagination page size. Used by tests and by
// callers with small row caps.
func (c *RidershipClient) SetPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

type socrataRow struct {
	TransitTimestamp string `json:"transit_timestamp"`
	RouteID          string `json:"route_id"`
	PaymentMethod    string `json:"payment_method"`
	FareClass        string `json:"fare_class_category"`
	Ridership        string `json:"ridership"`
	Transfers        string `json:"transfers"`
}

// FetchRidership pulls pages until the source returns fewer rows than the
// page size or the request row cap is reached. Rows with unparseable
// timestamps are dropped here; they cannot participate in the time join.
// The date range is enforced client-side as well: the $where clause is only
// advisory, and every returned record must fall inside the request window.
func (c *RidershipClient) FetchRidership(ctx context.Context, req models.Request) ([]models.RidershipRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, &ExtractionError{Source: "ridership", Err: err}
	}

	var records []models.RidershipRecord
	dropped := 0
	outOfRange := 0
	rangeEnd := req.EndDate.AddDate(0, 0, 1)

	for offset := 0; len(records) < req.RowLimit; offset += c.pageSize {
		limit := c.pageSize
		if remaining := req.RowLimit - len(records); remaining < limit {
			limit = remaining
		}

		rows, err := c.fetchPage(ctx, req, limit, offset)
		if err != nil {
			metrics.SourceFetches.WithLabelValues("ridership", "error").Inc()
			log.Printf("extract: ridership fetch failed after %d rows: %v", len(records), err)
			return nil, err
		}

		for _, row := range rows {
			ts, ok := parseSocrataTime(row.TransitTimestamp)
			if !ok {
				dropped++
				continue
			}
			if ts.Before(req.StartDate) || !ts.Before(rangeEnd) {
				outOfRange++
				continue
			}
			records = append(records, models.RidershipRecord{
				Timestamp:     ts,
				RouteID:       row.RouteID,
				PaymentMethod: row.PaymentMethod,
				FareClass:     row.FareClass,
				Ridership:     coerceCount(row.Ridership),
				Transfers:     coerceCount(row.Transfers),
			})
		}

		if len(rows) < limit {
			break
		}
	}

	metrics.SourceFetches.WithLabelValues("ridership", "success").Inc()
	metrics.RecordsExtracted.WithLabelValues("ridership").Add(float64(len(records)))
	log.Printf("extract: ridership %s to %s: %d rows (%d dropped, bad timestamps; %d outside range)",
		req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"), len(records), dropped, outOfRange)
	return records, nil
}

func (c *RidershipClient) fetchPage(ctx context.Context, req models.Request, limit, offset int) ([]socrataRow, error) {
	where := fmt.Sprintf("transit_timestamp >= '%sT00:00:00' AND transit_timestamp < '%sT00:00:00'",
		req.StartDate.Format("2006-01-02"), req.EndDate.AddDate(0, 0, 1).Format("2006-01-02"))

	values := url.Values{}
	values.Set("$limit", strconv.Itoa(limit))
	values.Set("$offset", strconv.Itoa(offset))
	values.Set("$order", "transit_timestamp")
	values.Set("$where", where)

	var rows []socrataRow
	operation := func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
			if err != nil {
				return nil, backoff.Permanent(&ExtractionError{Source: "ridership", Err: err})
			}
			if c.appToken != "" {
				httpReq.Header.Set("X-App-Token", c.appToken)
			}

			resp, err := c.client.Do(httpReq)
			if err != nil {
				// Transport failures and timeouts are retryable.
				return nil, fmt.Errorf("fetch page: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("fetch page: status %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return nil, backoff.Permanent(&ExtractionError{
					Source:     "ridership",
					StatusCode: resp.StatusCode,
					Err:        fmt.Errorf("fetch page: %s", string(b)),
				})
			}

			if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
				return nil, backoff.Permanent(&ExtractionError{
					Source:     "ridership",
					StatusCode: resp.StatusCode,
					Err:        fmt.Errorf("decode page: %w", err),
				})
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(&ExtractionError{Source: "ridership", Err: err})
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		var ee *ExtractionError
		if errors.As(err, &ee) {
			return nil, ee
		}
		return nil, &ExtractionError{Source: "ridership", Err: err}
	}
	return rows, nil
}

// parseSocrataTime handles the two timestamp shapes Socrata serves.
func parseSocrataTime(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// coerceCount parses a non-negative count served as a string. Unparseable or
// negative values become null, never an error.
func coerceCount(s string) sql.NullInt64 {
	if s == "" {
		return sql.NullInt64{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}
}
