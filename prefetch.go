package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	streetViewBaseURL = "https://maps.googleapis.com/maps/api/streetview"
	streetViewSize    = "640x480"
	streetViewFOV     = 120
	userAgent         = "streetwarp/0.1"
)

// --- Structs ---

// streetViewClient fetches panorama metadata and images for viewpoints.
// Batches are all-or-nothing: results come back in request order or not at
// all.
type streetViewClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	concurrency int
	cache       *metadataCache // optional
	reporter    progressReporter
}

func newStreetViewClient(apiKey string, net NetworkConfig, cache *metadataCache, reporter progressReporter) *streetViewClient {
	return &streetViewClient{
		baseURL:     streetViewBaseURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: net.Timeout},
		concurrency: net.Concurrency,
		cache:       cache,
		reporter:    reporter,
	}
}

func (c *streetViewClient) metadataURL(loc Coordinate) string {
	q := url.Values{}
	q.Set("location", loc.String())
	q.Set("source", "outdoor")
	q.Set("key", c.apiKey)
	return c.baseURL + "/metadata?" + q.Encode()
}

func (c *streetViewClient) imageURL(vp Viewpoint) string {
	q := url.Values{}
	q.Set("size", streetViewSize)
	q.Set("location", vp.Coordinate.String())
	q.Set("fov", strconv.Itoa(streetViewFOV))
	q.Set("source", "outdoor")
	q.Set("heading", strconv.FormatFloat(vp.Bearing, 'f', -1, 64))
	q.Set("pitch", "0")
	q.Set("key", c.apiKey)
	return c.baseURL + "?" + q.Encode()
}

// --- Downloading ---

func (c *streetViewClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out after %v: %w", c.httpClient.Timeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

func (c *streetViewClient) metadataFor(ctx context.Context, loc Coordinate) (PanoMetadata, error) {
	if c.cache != nil {
		meta, ok, err := c.cache.get(loc)
		if err != nil {
			log.Printf("Ignoring metadata cache: %v", err)
		} else if ok {
			return meta, nil
		}
	}

	body, err := c.get(ctx, c.metadataURL(loc))
	if err != nil {
		return PanoMetadata{}, fmt.Errorf("failed to fetch metadata for %s: %w", loc, err)
	}
	var meta PanoMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return PanoMetadata{}, fmt.Errorf("failed to parse metadata for %s: %w", loc, err)
	}

	if c.cache != nil {
		if err := c.cache.put(loc, meta); err != nil {
			log.Printf("Could not cache metadata for %s: %v", loc, err)
		}
	}
	return meta, nil
}

// fetchMetadata returns one metadata record per viewpoint, in the same order.
// Records with a non-OK status are kept; only transport or parse failures
// abort the batch.
func (c *streetViewClient) fetchMetadata(ctx context.Context, viewpoints []Viewpoint) ([]PanoMetadata, error) {
	results := make([]PanoMetadata, len(viewpoints))
	counter := c.reporter.Counter("Fetching metadata", len(viewpoints))
	defer counter.Finish()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.concurrency))
	for i, vp := range viewpoints {
		i, vp := i, vp
		g.Go(func() error {
			meta, err := c.metadataFor(ctx, vp.Coordinate)
			if err != nil {
				return err
			}
			results[i] = meta
			counter.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchImages downloads one image per viewpoint into outDir as {index}.jpg.
// If any download fails, the files this batch already wrote are removed so a
// reused directory never mixes frames from different runs.
func (c *streetViewClient) fetchImages(ctx context.Context, viewpoints []Viewpoint, outDir string) error {
	counter := c.reporter.Counter("Fetching images", len(viewpoints))
	defer counter.Finish()

	var mu sync.Mutex
	var written []string

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.concurrency))
	for i, vp := range viewpoints {
		i, vp := i, vp
		g.Go(func() error {
			body, err := c.get(ctx, c.imageURL(vp))
			if err != nil {
				return fmt.Errorf("failed to fetch image %d: %w", i, err)
			}
			if _, err := jpeg.DecodeConfig(bytes.NewReader(body)); err != nil {
				return fmt.Errorf("image %d is not a JPEG: %w", i, err)
			}
			path := filepath.Join(outDir, strconv.Itoa(i)+".jpg")
			if err := os.WriteFile(path, body, 0o644); err != nil {
				return err
			}
			mu.Lock()
			written = append(written, path)
			mu.Unlock()
			counter.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, path := range written {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Printf("Could not remove partial frame %s: %v", path, rmErr)
			}
		}
		return err
	}
	return nil
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{Concurrency: 40, Timeout: 30 * time.Second}
}
