package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kalambet/resqfreeze/internal/alerts"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/storage"
)

type readingRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	VOC         *float64 `json:"voc"`
}

func (r readingRequest) validate() error {
	switch {
	case r.Temperature == nil:
		return errors.New("temperature is required")
	case r.Humidity == nil:
		return errors.New("humidity is required")
	case r.VOC == nil:
		return errors.New("voc is required")
	case *r.Temperature < -20 || *r.Temperature > 60:
		return fmt.Errorf("temperature %g outside -20..60", *r.Temperature)
	case *r.Humidity < 0 || *r.Humidity > 100:
		return fmt.Errorf("humidity %g outside 0..100", *r.Humidity)
	case *r.VOC < 0:
		return fmt.Errorf("voc %g must not be negative", *r.VOC)
	}
	return nil
}

type readingResponse struct {
	ID          int64     `json:"id,omitempty"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	VOC         float64   `json:"voc"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toReadingResponse(r storage.Reading) readingResponse {
	return readingResponse{
		ID:          r.ID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		VOC:         r.VOC,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}
}

type historyPoint struct {
	Time       string  `json:"time"`
	Suhu       float64 `json:"suhu"`
	Kelembapan float64 `json:"kelembapan"`
	VOC        float64 `json:"voc"`
	Status     string  `json:"status"`
}

func handlePostReading(deps AppDeps, mu *sync.Mutex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req readingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := req.validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		label := freshness.BandForVOC(*req.VOC).Label()

		mu.Lock()
		defer mu.Unlock()

		prev, err := deps.Store.LatestReading()
		hasPrev := err == nil
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load previous reading: %v", err)
			return
		}

		saved, err := deps.Store.SaveReading(storage.Reading{
			Temperature: *req.Temperature,
			Humidity:    *req.Humidity,
			VOC:         *req.VOC,
			Status:      label,
			CreatedAt:   deps.now().UTC(),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save reading: %v", err)
			return
		}

		log := deps.logger()
		if deps.MaxReadings > 0 {
			if n, err := deps.Store.PruneReadings(deps.MaxReadings); err != nil {
				log.Warn("pruning readings", "error", err)
			} else if n > 0 {
				log.Debug("pruned readings", "count", n)
			}
		}

		if hasPrev && prev.Status != label {
			id, err := alerts.EnqueueTransition(deps.Store, alerts.Transition{
				From:      prev.Status,
				To:        label,
				ReadingID: saved.ID,
				VOC:       saved.VOC,
				At:        saved.CreatedAt,
			})
			if err != nil {
				log.Warn("enqueueing status transition", "error", err, "from", prev.Status, "to", label)
			} else {
				log.Info("status transition", "job_id", id, "from", prev.Status, "to", label)
			}
		}

		writeJSON(w, http.StatusCreated, toReadingResponse(saved))
	}
}

func handleLatestReading(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, err := deps.Store.LatestReading()
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, readingResponse{
				Status:    freshness.Segar.Label(),
				CreatedAt: deps.now().UTC(),
			})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load latest reading: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toReadingResponse(latest))
	}
}

func handleSensorHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 12, 500)

		readings, err := deps.Store.RecentReadings(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load sensor history: %v", err)
			return
		}

		points := make([]historyPoint, len(readings))
		for i, rd := range readings {
			points[i] = historyPoint{
				Time:       rd.CreatedAt.Local().Format("15:04"),
				Suhu:       rd.Temperature,
				Kelembapan: rd.Humidity,
				VOC:        rd.VOC,
				Status:     rd.Status,
			}
		}
		writeJSON(w, http.StatusOK, points)
	}
}
