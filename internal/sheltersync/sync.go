package sheltersync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hmori/go-civic-response/internal/config"
	"github.com/hmori/go-civic-response/internal/models"
	"github.com/hmori/go-civic-response/internal/repository"
	"github.com/hmori/go-civic-response/internal/worker"
)

// Manager keeps the shelters table in sync with the authority's shelter
// feed. The application itself never writes shelters; this poller is
// the single writer.
type Manager struct {
	cfg  *config.Config
	repo repository.ShelterRepository
	pool *worker.Pool[*models.Shelter]
	wg   sync.WaitGroup
}

func NewManager(cfg *config.Config, repo repository.ShelterRepository) *Manager {
	return &Manager{
		cfg:  cfg,
		repo: repo,
	}
}

func (m *Manager) Start(ctx context.Context) {
	processor := func(ctx context.Context, sh *models.Shelter) error {
		if err := m.repo.UpsertShelter(ctx, sh); err != nil {
			slog.Error("error upserting shelter", "id", sh.ID, "error", err)
			return err
		}
		return nil
	}

	m.pool = worker.NewPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, processor)
	m.pool.Start(ctx)

	if m.cfg.Shelters.Enabled {
		m.wg.Add(1)
		go m.runPoller(ctx, m.cfg.Shelters.FeedURL, m.cfg.Shelters.PollInterval)
	}
}

func (m *Manager) runPoller(ctx context.Context, url string, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting shelter feed poller", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, url)

	for {
		select {
		case <-ctx.Done():
			slog.Info("shelter feed poller shutting down")
			return
		case <-ticker.C:
			m.poll(ctx, url)
		}
	}
}

func (m *Manager) poll(ctx context.Context, url string) {
	slog.Debug("polling shelter feed")

	shelters, err := m.fetchFeed(ctx, url)
	if err != nil {
		slog.Error("shelter feed poll failed", "error", err)
		return
	}

	for _, sh := range shelters {
		m.pool.Submit(sh)
	}

	slog.Debug("shelter feed poll complete", "count", len(shelters))
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("shelter sync stopped")
}

type feedShelter struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Capacity   int      `json:"capacity"`
	Occupancy  int      `json:"occupancy"`
	Facilities []string `json:"facilities"`
	Contact    string   `json:"contact"`
}

func (m *Manager) fetchFeed(ctx context.Context, url string) ([]*models.Shelter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	client := &http.Client{
		Timeout: 15 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var entries []feedShelter
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	now := time.Now()
	shelters := make([]*models.Shelter, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Name == "" {
			slog.Warn("skipping shelter feed entry with missing id or name")
			continue
		}
		shelters = append(shelters, &models.Shelter{
			ID:               e.ID,
			Name:             e.Name,
			Address:          e.Address,
			Latitude:         e.Lat,
			Longitude:        e.Lng,
			Capacity:         e.Capacity,
			CurrentOccupancy: e.Occupancy,
			Facilities:       e.Facilities,
			Contact:          e.Contact,
			UpdatedAt:        now,
		})
	}

	return shelters, nil
}
