package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/parking-sync/internal/model"
)

// GetZones fetches the full zone snapshot.
func (c *Client) GetZones(ctx context.Context) ([]model.ZoneState, error) {
	var zones []model.ZoneState
	if err := c.get(ctx, "/zones", nil, &zones); err != nil {
		return nil, fmt.Errorf("get zones: %w", err)
	}
	return zones, nil
}

// GetZone fetches a single zone.
func (c *Client) GetZone(ctx context.Context, id string) (*model.ZoneState, error) {
	var zone model.ZoneState
	if err := c.get(ctx, "/zones/"+url.PathEscape(id), nil, &zone); err != nil {
		return nil, fmt.Errorf("get zone %s: %w", id, err)
	}
	return &zone, nil
}

// GetCategories fetches the category list.
func (c *Client) GetCategories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := c.get(ctx, "/categories", nil, &categories); err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}
	return categories, nil
}

// GetGates fetches the gates with their zone membership lists.
func (c *Client) GetGates(ctx context.Context) ([]model.Gate, error) {
	var gates []model.Gate
	if err := c.get(ctx, "/gates", nil, &gates); err != nil {
		return nil, fmt.Errorf("get gates: %w", err)
	}
	return gates, nil
}

// Snapshot is everything needed to seed the zone cache.
type Snapshot struct {
	Zones      []model.ZoneState
	Categories []model.Category
	Gates      []model.Gate
	FetchedAt  time.Time // when the requests were issued
}

// GetSnapshot fetches zones, categories and gates concurrently.
func (c *Client) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := Snapshot{FetchedAt: time.Now()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zones, err := c.GetZones(ctx)
		snap.Zones = zones
		return err
	})
	g.Go(func() error {
		categories, err := c.GetCategories(ctx)
		snap.Categories = categories
		return err
	})
	g.Go(func() error {
		gates, err := c.GetGates(ctx)
		snap.Gates = gates
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}
