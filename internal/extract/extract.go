package extract

import (
	"context"
	"log"
	"sync"

	"github.com/mgalarneau/NYC-Transit-Project/internal/models"
)

// RidershipFetcher fetches ridership records for a request's date range.
type RidershipFetcher interface {
	FetchRidership(ctx context.Context, req models.Request) ([]models.RidershipRecord, error)
}

// WeatherFetcher fetches weather observations for a request's coordinate and
// date range.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, req models.Request) ([]models.WeatherRecord, error)
}

// Extractor runs both source fetches for a request. The two sources are
// independent, so they run concurrently; this is the pipeline's only
// parallelism point.
type Extractor struct {
	Ridership RidershipFetcher
	Weather   WeatherFetcher
}

func NewExtractor(ridership RidershipFetcher, weather WeatherFetcher) *Extractor {
	return &Extractor{Ridership: ridership, Weather: weather}
}

// Extract fetches both datasets. A ridership failure always fails the
// request. A weather failure fails the request unless AllowPartialWeather is
// set, in which case the result degrades to ridership-only and the join will
// leave all weather columns null.
func (e *Extractor) Extract(ctx context.Context, req models.Request) ([]models.RidershipRecord, []models.WeatherRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, &ExtractionError{Source: "request", Err: err}
	}

	var (
		wg           sync.WaitGroup
		ridership    []models.RidershipRecord
		weather      []models.WeatherRecord
		ridershipErr error
		weatherErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		ridership, ridershipErr = e.Ridership.FetchRidership(ctx, req)
	}()
	go func() {
		defer wg.Done()
		weather, weatherErr = e.Weather.FetchWeather(ctx, req)
	}()
	wg.Wait()

	if ridershipErr != nil {
		return nil, nil, ridershipErr
	}
	if weatherErr != nil {
		if !req.AllowPartialWeather {
			return nil, nil, weatherErr
		}
		log.Printf("extract: weather fetch failed, continuing ridership-only: %v", weatherErr)
		weather = nil
	}

	return ridership, weather, nil
}
