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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/mgalarneau/NYC-Transit-Project/internal/httputil"
	"github.com/mgalarneau/NYC-Transit-Project/internal/metrics"
	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

const DefaultWeatherURL = "https://archive-api.open-meteo.com/v1/archive"

// WeatherClient fetches hourly historical observations from the Open-Meteo
// archive API for a coordinate and date range.
type WeatherClient struct {
	baseURL    string
	client     *http.Client
	maxElapsed time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func NewWeatherClient(baseURL string) *WeatherClient {
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	return &WeatherClient{
		baseURL:    baseURL,
		client:     httputil.NewClient(),
		maxElapsed: 2 * time.Minute,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "weather",
			Interval: 1 * time.Minute,
			Timeout:  2 * time.Minute,
		}),
	}
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature2M []*float64 `json:"temperature_2m"`
		Precipitation []*float64 `json:"precipitation"`
		WindSpeed10M  []*float64 `json:"windspeed_10m"`
		WeatherCode   []*int     `json:"weathercode"`
	} `json:"hourly"`
}

// FetchWeather returns hourly observations ordered as served by the archive.
// Missing values in any series come back null, mirroring the API's own gaps.
func (c *WeatherClient) FetchWeather(ctx context.Context, req models.Request) ([]models.WeatherRecord, error) {
	if req.StartDate.After(req.EndDate) {
		return nil, &ExtractionError{Source: "weather", Err: fmt.Errorf("start date after end date")}
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%.4f", req.Latitude))
	values.Set("longitude", fmt.Sprintf("%.4f", req.Longitude))
	values.Set("start_date", req.StartDate.Format("2006-01-02"))
	values.Set("end_date", req.EndDate.Format("2006-01-02"))
	values.Set("hourly", "temperature_2m,precipitation,windspeed_10m,weathercode")
	values.Set("timezone", "UTC")

	var body []byte
	operation := func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
			if err != nil {
				return nil, backoff.Permanent(&ExtractionError{Source: "weather", Err: err})
			}

			resp, err := c.client.Do(httpReq)
			if err != nil {
				return nil, fmt.Errorf("fetch archive: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("fetch archive: status %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return nil, backoff.Permanent(&ExtractionError{
					Source:     "weather",
					StatusCode: resp.StatusCode,
					Err:        fmt.Errorf("fetch archive: %s", string(b)),
				})
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(&ExtractionError{Source: "weather", Err: err})
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.SourceFetches.WithLabelValues("weather", "error").Inc()
		var ee *ExtractionError
		if errors.As(err, &ee) {
			return nil, ee
		}
		return nil, &ExtractionError{Source: "weather", Err: err}
	}

	var data openMeteoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		metrics.SourceFetches.WithLabelValues("weather", "error").Inc()
		return nil, &ExtractionError{Source: "weather", Err: fmt.Errorf("unmarshal: %w", err)}
	}

	records := make([]models.WeatherRecord, 0, len(data.Hourly.Time))
	for i, raw := range data.Hourly.Time {
		ts, err := time.Parse("2006-01-02T15:04", raw)
		if err != nil {
			continue
		}
		rec := models.WeatherRecord{ObservationTime: ts.UTC()}
		if v := at(data.Hourly.Temperature2M, i); v != nil {
			rec.TemperatureC = sql.NullFloat64{Float64: *v, Valid: true}
		}
		if v := at(data.Hourly.Precipitation, i); v != nil {
			rec.PrecipitationMM = sql.NullFloat64{Float64: *v, Valid: true}
		}
		if v := at(data.Hourly.WindSpeed10M, i); v != nil {
			rec.WindSpeed = sql.NullFloat64{Float64: *v, Valid: true}
		}
		if i < len(data.Hourly.WeatherCode) && data.Hourly.WeatherCode[i] != nil {
			rec.Condition = sql.NullString{String: conditionFromCode(*data.Hourly.WeatherCode[i]), Valid: true}
		}
		records = append(records, rec)
	}

	metrics.SourceFetches.WithLabelValues("weather", "success").Inc()
	metrics.RecordsExtracted.WithLabelValues("weather").Add(float64(len(records)))
	log.Printf("extract: weather %s to %s at %.4f,%.4f: %d observations",
		req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"),
		req.Latitude, req.Longitude, len(records))
	return records, nil
}

func at(series []*float64, i int) *float64 {
	if i < len(series) {
		return series[i]
	}
	return nil
}

// conditionFromCode maps WMO weather codes to the categorical condition
// column. Simplified grouping; anything unrecognized is "unknown".
func conditionFromCode(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code >= 1 && code <= 3:
		return "cloudy"
	case code == 45 || code == 48:
		return "fog"
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return "rain"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "storm"
	default:
		return "unknown"
	}
}
